// Package config holds process configuration for tensorkv.
//
// Values come from three layers, later layers winning: DefaultConfig, the
// TENSORKV_* environment (FromEnv), and command-line flags applied with
// Merge. Validate reports every problem at once.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Environment variable names
const (
	EnvDataDir     = "TENSORKV_DATA_DIR"
	EnvFreshDir    = "TENSORKV_FRESH_DIR"
	EnvGRPCListen  = "TENSORKV_GRPC_LISTEN"
	EnvHTTPListen  = "TENSORKV_HTTP_LISTEN"
	EnvSyncWrites  = "TENSORKV_SYNC_WRITES"
	EnvLogLevel    = "TENSORKV_LOG_LEVEL"
	EnvLogJSON     = "TENSORKV_LOG_JSON"
	EnvGRPCAddress = "TENSORKV_GRPC_ADDR"
	EnvHTTPAddress = "TENSORKV_HTTP_ADDR"
)

const (
	defaultDataDir     = "./data"
	defaultGRPCListen  = ":50051"
	defaultHTTPListen  = ":3000"
	defaultLogLevel    = "info"
	defaultGRPCAddress = "127.0.0.1:50051"
	defaultHTTPAddress = "http://127.0.0.1:3000"
)

// Config is the full process configuration
type Config struct {
	// DataDir is the Pebble directory, or the parent of per-start
	// directories when FreshDir is set.
	DataDir  string `json:"data_dir"`
	FreshDir bool   `json:"fresh_dir,omitempty"`

	GRPCListen string `json:"grpc_listen"`
	HTTPListen string `json:"http_listen"`

	SyncWrites bool `json:"sync_writes"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json,omitempty"`

	// Client-side targets used by the non-serve commands
	GRPCAddress string `json:"grpc_address"`
	HTTPAddress string `json:"http_address"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:     defaultDataDir,
		GRPCListen:  defaultGRPCListen,
		HTTPListen:  defaultHTTPListen,
		SyncWrites:  true,
		LogLevel:    defaultLogLevel,
		GRPCAddress: defaultGRPCAddress,
		HTTPAddress: defaultHTTPAddress,
	}
}

// FromEnv starts from DefaultConfig and applies every TENSORKV_* variable
// that is set. Unparseable booleans are collected and returned together.
func FromEnv() (Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(lookup func(string) string) (Config, error) {
	getenv := func(k, def string) string {
		if v := lookup(k); v != "" {
			return v
		}
		return def
	}

	var result *multierror.Error
	getbool := func(k string, def bool) bool {
		v := lookup(k)
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %q is not a boolean", k, v))
			return def
		}
		return b
	}

	def := DefaultConfig()
	cfg := Config{
		DataDir:     getenv(EnvDataDir, def.DataDir),
		FreshDir:    getbool(EnvFreshDir, def.FreshDir),
		GRPCListen:  getenv(EnvGRPCListen, def.GRPCListen),
		HTTPListen:  getenv(EnvHTTPListen, def.HTTPListen),
		SyncWrites:  getbool(EnvSyncWrites, def.SyncWrites),
		LogLevel:    getenv(EnvLogLevel, def.LogLevel),
		LogJSON:     getbool(EnvLogJSON, def.LogJSON),
		GRPCAddress: getenv(EnvGRPCAddress, def.GRPCAddress),
		HTTPAddress: getenv(EnvHTTPAddress, def.HTTPAddress),
	}
	return cfg, result.ErrorOrNil()
}

// Merge applies non-zero values from source into c. Boolean fields can only
// be switched on this way; SyncWrites is turned off with DisableSync.
func (c *Config) Merge(source *Config) {
	if source.DataDir != "" {
		c.DataDir = source.DataDir
	}
	if source.FreshDir {
		c.FreshDir = true
	}
	if source.GRPCListen != "" {
		c.GRPCListen = source.GRPCListen
	}
	if source.HTTPListen != "" {
		c.HTTPListen = source.HTTPListen
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.LogJSON {
		c.LogJSON = true
	}
	if source.GRPCAddress != "" {
		c.GRPCAddress = source.GRPCAddress
	}
	if source.HTTPAddress != "" {
		c.HTTPAddress = source.HTTPAddress
	}
}

// DisableSync turns off waiting for WAL fsync on each write.
func (c *Config) DisableSync() {
	c.SyncWrites = false
}

// Validate checks every field and returns all problems found.
func (c Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.DataDir) == "" {
		result = multierror.Append(result, fmt.Errorf("data directory must not be empty"))
	}
	if _, _, err := net.SplitHostPort(c.GRPCListen); err != nil {
		result = multierror.Append(result, fmt.Errorf("grpc listen address %q: %w", c.GRPCListen, err))
	}
	if _, _, err := net.SplitHostPort(c.HTTPListen); err != nil {
		result = multierror.Append(result, fmt.Errorf("http listen address %q: %w", c.HTTPListen, err))
	}
	if c.GRPCListen != "" && c.GRPCListen == c.HTTPListen && !strings.HasSuffix(c.GRPCListen, ":0") {
		result = multierror.Append(result, fmt.Errorf("grpc and http cannot both listen on %s", c.GRPCListen))
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	return result.ErrorOrNil()
}

// ResolveDataDir returns the directory the persistent store should open.
// With FreshDir a new UUID-named subdirectory of DataDir is chosen on each
// call, so every start begins with an empty store.
func (c Config) ResolveDataDir() string {
	if c.FreshDir {
		return filepath.Join(c.DataDir, uuid.NewString())
	}
	return c.DataDir
}
