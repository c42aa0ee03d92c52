// Command tensorkv runs the tensor key-value server and talks to it.
//
// # Usage
//
//	tensorkv serve [-data-dir DIR] [-fresh] [-grpc-listen ADDR] [-http-listen ADDR] [-no-sync]
//	tensorkv put [-shape 2,2] [-volatile] KEY VALUE...
//	tensorkv get [-volatile] KEY
//	tensorkv delete [-volatile] KEY
//	tensorkv list [-volatile]
//	tensorkv health
//	tensorkv stats
//	tensorkv compact
//	tensorkv version
//
// serve runs the gRPC server (persistent u64 keyspace, Pebble-backed) and
// the HTTP server (volatile UUID keyspace) in one process. The other
// commands are clients: by default they use gRPC and u64 keys; -volatile
// switches to the HTTP API and UUID keys.
//
// # Configuration
//
// Every setting has a TENSORKV_* environment variable (see internal/config)
// which flags override:
//
//	TENSORKV_DATA_DIR     Pebble directory (default ./data)
//	TENSORKV_FRESH_DIR    new UUID-named subdirectory per start
//	TENSORKV_GRPC_LISTEN  gRPC listen address (default :50051)
//	TENSORKV_HTTP_LISTEN  HTTP listen address (default :3000)
//	TENSORKV_SYNC_WRITES  wait for WAL fsync on each write (default true)
//	TENSORKV_LOG_LEVEL    trace, debug, info, warn, error
//	TENSORKV_LOG_JSON     JSON log lines
//	TENSORKV_GRPC_ADDR    server address used by client commands
//	TENSORKV_HTTP_ADDR    server URL used by client commands
//
// # Graceful Shutdown
//
// serve stops on SIGINT or SIGTERM: health checks flip to NOT_SERVING,
// the HTTP server drains for up to 5 seconds, gRPC stops gracefully and
// both stores are closed.
package main

import (
	"io"
	"os"

	"github.com/mitchellh/cli"

	"github.com/dreamware/tensorkv/internal/config"
)

// Version is the release reported by the version command
var Version = "0.1.0"

const binName = "tensorkv"

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      stdout,
		ErrorWriter: stderr,
	}

	cfg, err := config.FromEnv()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	meta := Meta{
		Ui:        ui,
		Config:    cfg,
		LogOutput: stderr,
	}

	runner := &cli.CLI{
		Name:       binName,
		Version:    Version,
		Args:       args,
		Commands:   commands(meta),
		HelpWriter: stdout,
	}

	code, err := runner.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return code
}

func commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &ServeCommand{Meta: meta}, nil
		},
		"put": func() (cli.Command, error) {
			return &PutCommand{Meta: meta}, nil
		},
		"get": func() (cli.Command, error) {
			return &GetCommand{Meta: meta}, nil
		},
		"delete": func() (cli.Command, error) {
			return &DeleteCommand{Meta: meta}, nil
		},
		"list": func() (cli.Command, error) {
			return &ListCommand{Meta: meta}, nil
		},
		"health": func() (cli.Command, error) {
			return &HealthCommand{Meta: meta}, nil
		},
		"stats": func() (cli.Command, error) {
			return &StatsCommand{Meta: meta}, nil
		},
		"compact": func() (cli.Command, error) {
			return &CompactCommand{Meta: meta}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{Meta: meta}, nil
		},
	}
}
