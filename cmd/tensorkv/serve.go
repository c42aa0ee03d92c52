package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/tensorkv/internal/config"
	"github.com/dreamware/tensorkv/internal/httpapi"
	"github.com/dreamware/tensorkv/internal/keyspace"
	"github.com/dreamware/tensorkv/internal/logging"
	"github.com/dreamware/tensorkv/internal/rpc"
	"github.com/dreamware/tensorkv/internal/storage"
)

// shutdownTimeout bounds how long HTTP requests may drain
const shutdownTimeout = 5 * time.Second

// ServeCommand runs the gRPC and HTTP servers
type ServeCommand struct {
	Meta

	// Listening, when set, is called with the bound addresses once both
	// listeners are open.
	Listening func(grpcAddr, httpAddr string)
}

func (c *ServeCommand) Synopsis() string {
	return "Run the gRPC and HTTP servers"
}

func (c *ServeCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv serve [options]

  Serves the persistent u64 keyspace over gRPC and the volatile UUID
  keyspace over HTTP until interrupted.

Options:

  -data-dir=DIR        Pebble directory (TENSORKV_DATA_DIR, default ./data)
  -fresh               Open a new UUID-named directory under -data-dir
  -grpc-listen=ADDR    gRPC listen address (default :50051)
  -http-listen=ADDR    HTTP listen address (default :3000)
  -no-sync             Do not wait for WAL fsync on each write
  -log-level=LEVEL     trace, debug, info, warn or error
  -log-json            Emit JSON log lines
`)
}

func (c *ServeCommand) Run(args []string) int {
	var over config.Config
	var noSync bool
	fs := c.flagSet("serve")
	fs.StringVar(&over.DataDir, "data-dir", "", "")
	fs.BoolVar(&over.FreshDir, "fresh", false, "")
	fs.StringVar(&over.GRPCListen, "grpc-listen", "", "")
	fs.StringVar(&over.HTTPListen, "http-listen", "", "")
	fs.BoolVar(&noSync, "no-sync", false, "")
	fs.StringVar(&over.LogLevel, "log-level", "", "")
	fs.BoolVar(&over.LogJSON, "log-json", false, "")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	if noSync {
		cfg.DisableSync()
	}
	if err := cfg.Validate(); err != nil {
		return c.fail(err)
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Output: c.LogOutput})
	if err := c.serve(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		return c.fail(err)
	}
	return 0
}

func (c *ServeCommand) serve(cfg config.Config, log hclog.Logger) (err error) {
	dir := cfg.ResolveDataDir()
	persistent, err := storage.OpenPersistentStore(dir,
		storage.WithSyncWrites(cfg.SyncWrites),
		storage.WithLogger(log.Named("pebble")),
	)
	if err != nil {
		return err
	}
	volatile := storage.NewVolatileStore()
	defer func() {
		err = multierror.Append(err, persistent.Close(), volatile.Close()).ErrorOrNil()
	}()
	log.Info("opened persistent store", "path", dir, "sync_writes", cfg.SyncWrites)

	grpcLis, err := net.Listen("tcp", cfg.GRPCListen)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPListen)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	rpcServer := rpc.NewServer(keyspace.NewPersistent("persistent", persistent), log.Named("grpc"))
	grpcServer := rpc.NewGRPCServer(rpcServer)
	api := httpapi.New(keyspace.NewVolatile("volatile", volatile), log.Named("http"))
	httpServer := api.NewServer(cfg.HTTPListen)

	log.Info("grpc listening", "addr", grpcLis.Addr().String())
	log.Info("http listening", "addr", httpLis.Addr().String())
	if c.Listening != nil {
		c.Listening(grpcLis.Addr().String(), httpLis.Addr().String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		if err := httpServer.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-c.ShutdownCh:
		}
		log.Info("shutting down")
		rpcServer.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpErr := httpServer.Shutdown(sctx)
		grpcServer.GracefulStop()
		return httpErr
	})

	return g.Wait()
}
