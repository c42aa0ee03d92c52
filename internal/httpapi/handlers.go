// Package httpapi serves the volatile UUID keyspace as a JSON HTTP API.
//
// Routes:
//
//	POST   /store/{key}   store a matrix
//	GET    /store/{key}   fetch a matrix
//	DELETE /store/{key}   remove a matrix
//	GET    /store         list keys
//	GET    /health        liveness
//	GET    /stats         keyspace counters
//
// Keys are UUIDs in any form uuid.Parse accepts. Absent keys are reported
// in the body with success=false and status 200, never as 404.
package httpapi

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dreamware/tensorkv/internal/keyspace"
	"github.com/dreamware/tensorkv/internal/tensor"
)

// ServiceLabel is reported by /health.
const ServiceLabel = "tensorkv"

// maxBodyBytes bounds a single matrix upload.
const maxBodyBytes = 64 << 20

// StoreRequest is the body of POST /store/{key}.
type StoreRequest struct {
	Matrix tensor.Matrix `json:"matrix"`
}

// StoreResponse answers POST and DELETE on /store/{key}.
type StoreResponse struct {
	Key     string `json:"key"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GetResponse answers GET /store/{key}. Matrix is null when absent.
type GetResponse struct {
	Key     string         `json:"key"`
	Matrix  *tensor.Matrix `json:"matrix"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

// ListResponse answers GET /store.
type ListResponse struct {
	Keys    []string `json:"keys"`
	Count   int      `json:"count"`
	Success bool     `json:"success"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// API serves one volatile keyspace
type API struct {
	ks  *keyspace.Keyspace[uuid.UUID]
	log hclog.Logger
}

// New returns an API over ks. A nil logger discards output.
func New(ks *keyspace.Keyspace[uuid.UUID], log hclog.Logger) *API {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &API{ks: ks, log: log}
}

// Routes returns the bare route table.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /store/{key}", a.handleStore)
	mux.HandleFunc("GET /store/{key}", a.handleGet)
	mux.HandleFunc("DELETE /store/{key}", a.handleDelete)
	mux.HandleFunc("GET /store", a.handleList)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /stats", a.handleStats)
	return mux
}

// Handler returns the routes wrapped with request logging, permissive CORS
// and OpenTelemetry instrumentation.
func (a *API) Handler() http.Handler {
	return otelhttp.NewHandler(cors(a.logRequests(a.Routes())), "tensorkv.http")
}

// NewServer returns an http.Server for addr serving Handler.
func (a *API) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          a.log.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}
}

// keyCheck is the writer's copy of a UUID key: its high 64 bits.
func keyCheck(key uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(key[:8])
}

// parseKey reads {key}, writing the 400 response itself on failure.
func parseKey(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	raw := r.PathValue("key")
	key, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "Invalid UUID", http.StatusBadRequest)
		return raw, uuid.Nil, false
	}
	return raw, key, true
}

func (a *API) storageFailure(w http.ResponseWriter, op string, key uuid.UUID, err error) {
	a.log.Error("storage operation failed", "op", op, "key", key, "error", err)
	http.Error(w, "Storage error", http.StatusInternalServerError)
}

func (a *API) handleStore(w http.ResponseWriter, r *http.Request) {
	raw, key, ok := parseKey(w, r)
	if !ok {
		return
	}

	var req StoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	value, err := req.Matrix.Envelope(keyCheck(key))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, existed, err := a.ks.Put(key, value)
	if err != nil {
		a.storageFailure(w, "put", key, err)
		return
	}
	msg := "Matrix stored successfully"
	if existed {
		msg = "Matrix updated successfully"
	}
	writeJSON(w, http.StatusOK, StoreResponse{Key: raw, Success: true, Message: msg})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	raw, key, ok := parseKey(w, r)
	if !ok {
		return
	}

	value, found, err := a.ks.Get(key)
	if err != nil {
		a.storageFailure(w, "get", key, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, GetResponse{Key: raw, Message: "Matrix not found"})
		return
	}
	m, err := tensor.FromEnvelope(value)
	if err != nil {
		a.storageFailure(w, "decode", key, err)
		return
	}
	writeJSON(w, http.StatusOK, GetResponse{
		Key:     raw,
		Matrix:  &m,
		Success: true,
		Message: "Matrix retrieved successfully",
	})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	raw, key, ok := parseKey(w, r)
	if !ok {
		return
	}

	_, existed, err := a.ks.Delete(key)
	if err != nil {
		a.storageFailure(w, "delete", key, err)
		return
	}
	resp := StoreResponse{Key: raw, Success: true, Message: "Matrix deleted successfully"}
	if !existed {
		resp.Success, resp.Message = false, "Matrix not found"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleList(w http.ResponseWriter, _ *http.Request) {
	keys, err := a.ks.ListKeys()
	if err != nil {
		a.storageFailure(w, "list", uuid.Nil, err)
		return
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	writeJSON(w, http.StatusOK, ListResponse{Keys: out, Count: len(out), Success: true})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: ServiceLabel})
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	info, err := a.ks.Info()
	if err != nil {
		a.storageFailure(w, "stats", uuid.Nil, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
