package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/cli"

	"github.com/dreamware/tensorkv/internal/config"
	"github.com/dreamware/tensorkv/internal/httpapi"
	"github.com/dreamware/tensorkv/internal/rpc"
)

// clientTimeout bounds every client command
const clientTimeout = 10 * time.Second

// Meta is shared by every command
type Meta struct {
	Ui     cli.Ui
	Config config.Config // environment layer; flags merge over it

	// LogOutput receives server logs
	LogOutput io.Writer

	// ShutdownCh stops serve when closed, in addition to signals
	ShutdownCh <-chan struct{}
}

// flagSet returns a flag set whose errors are reported through Ui.
func (m *Meta) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// clientFlags adds the server address flags used by client commands.
func (m *Meta) clientFlags(fs *flag.FlagSet, over *config.Config) {
	fs.StringVar(&over.GRPCAddress, "grpc-addr", "", "gRPC server address")
	fs.StringVar(&over.HTTPAddress, "http-addr", "", "HTTP server URL")
}

// resolve merges flag overrides over the environment configuration.
func (m *Meta) resolve(over *config.Config) config.Config {
	cfg := m.Config
	cfg.Merge(over)
	return cfg
}

func (m *Meta) grpcClient(cfg config.Config) (*rpc.Client, error) {
	return rpc.Dial(cfg.GRPCAddress)
}

func (m *Meta) httpClient(cfg config.Config) *httpapi.Client {
	return httpapi.NewClient(cfg.HTTPAddress, nil)
}

func (m *Meta) clientContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), clientTimeout)
}

// fail reports err and returns the generic failure code.
func (m *Meta) fail(err error) int {
	m.Ui.Error(err.Error())
	return 1
}

// usageError reports a problem with the command line.
func (m *Meta) usageError(format string, args ...any) int {
	m.Ui.Error(fmt.Sprintf(format, args...))
	return cli.RunResultHelp
}

func (m *Meta) outputJSON(v any) int {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return m.fail(err)
	}
	m.Ui.Output(string(b))
	return 0
}

// parseShape parses "2,3" into dimensions.
func parseShape(s string) ([]uint64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]uint64, len(parts))
	for i, p := range parts {
		d, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q: %w", s, err)
		}
		shape[i] = d
	}
	return shape, nil
}

func parseValues(args []string) ([]float64, error) {
	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", a, err)
		}
		values[i] = v
	}
	return values, nil
}
