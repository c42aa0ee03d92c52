package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/tensorkv/internal/config"
	"github.com/dreamware/tensorkv/internal/tensor"
)

// compactTimeout replaces clientTimeout for compaction, which rewrites
// every table.
const compactTimeout = 10 * time.Minute

// keyArg is a parsed KEY argument: a u64 for gRPC or a UUID with -volatile.
type keyArg struct {
	id   uint64
	uuid uuid.UUID
}

func parseKey(s string, volatile bool) (keyArg, error) {
	if volatile {
		u, err := uuid.Parse(s)
		if err != nil {
			return keyArg{}, fmt.Errorf("invalid UUID key %q", s)
		}
		return keyArg{uuid: u}, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return keyArg{}, fmt.Errorf("invalid key %q: keys are unsigned 64-bit integers", s)
	}
	return keyArg{id: id}, nil
}

// PutCommand stores an FP64 tensor
type PutCommand struct {
	Meta
}

func (c *PutCommand) Synopsis() string { return "Store a tensor" }

func (c *PutCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv put [options] KEY VALUE...

  Stores VALUE... as an FP64 tensor under KEY. Without -shape the tensor
  is one-dimensional.

Options:

  -shape=2,2        Tensor dimensions; their product must equal the value count
  -volatile         Use the HTTP API and a UUID key
  -grpc-addr=ADDR   gRPC server address
  -http-addr=URL    HTTP server URL
`)
}

func (c *PutCommand) Run(args []string) int {
	var over config.Config
	var shapeFlag string
	var volatile bool
	fs := c.flagSet("put")
	c.clientFlags(fs, &over)
	fs.StringVar(&shapeFlag, "shape", "", "")
	fs.BoolVar(&volatile, "volatile", false, "")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}
	if fs.NArg() < 2 {
		return c.usageError("put needs a key and at least one value")
	}

	key, err := parseKey(fs.Arg(0), volatile)
	if err != nil {
		return c.usageError("%s", err)
	}
	values, err := parseValues(fs.Args()[1:])
	if err != nil {
		return c.usageError("%s", err)
	}
	shape, err := parseShape(shapeFlag)
	if err != nil {
		return c.usageError("%s", err)
	}
	if shape == nil {
		shape = []uint64{uint64(len(values))}
	}
	m := tensor.New(values, shape...)
	if err := m.Validate(); err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := c.clientContext()
	defer cancel()

	if volatile {
		resp, err := c.httpClient(cfg).Put(ctx, key.uuid, m)
		if err != nil {
			return c.fail(err)
		}
		c.Ui.Output(resp.Message)
		return 0
	}

	value, err := m.Envelope(key.id)
	if err != nil {
		return c.fail(err)
	}
	client, err := c.grpcClient(cfg)
	if err != nil {
		return c.fail(err)
	}
	defer client.Close()
	resp, err := client.Put(ctx, key.id, value)
	if err != nil {
		return c.fail(err)
	}
	c.Ui.Output(resp.Message)
	return 0
}

// GetCommand fetches a tensor
type GetCommand struct {
	Meta
}

func (c *GetCommand) Synopsis() string { return "Fetch a tensor" }

func (c *GetCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv get [options] KEY

  Prints the tensor stored under KEY as JSON. Exits 1 when absent.

Options:

  -volatile         Use the HTTP API and a UUID key
  -grpc-addr=ADDR   gRPC server address
  -http-addr=URL    HTTP server URL
`)
}

// getOutput is printed for values read over gRPC
type getOutput struct {
	Key       uint64         `json:"key"`
	DType     string         `json:"dtype"`
	Shape     []uint64       `json:"shape"`
	SizeCheck uint64         `json:"size_check"`
	KeyCheck  uint64         `json:"key_check"`
	Bytes     int            `json:"bytes"`
	Matrix    *tensor.Matrix `json:"matrix,omitempty"`
	Warning   string         `json:"warning,omitempty"`
}

func (c *GetCommand) Run(args []string) int {
	var over config.Config
	var volatile bool
	fs := c.flagSet("get")
	c.clientFlags(fs, &over)
	fs.BoolVar(&volatile, "volatile", false, "")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}
	if fs.NArg() != 1 {
		return c.usageError("get needs exactly one key")
	}
	key, err := parseKey(fs.Arg(0), volatile)
	if err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := c.clientContext()
	defer cancel()

	if volatile {
		m, ok, err := c.httpClient(cfg).Get(ctx, key.uuid)
		if err != nil {
			return c.fail(err)
		}
		if !ok {
			return c.fail(fmt.Errorf("key %s not found", key.uuid))
		}
		return c.outputJSON(m)
	}

	client, err := c.grpcClient(cfg)
	if err != nil {
		return c.fail(err)
	}
	defer client.Close()
	value, ok, err := client.Get(ctx, key.id)
	if err != nil {
		return c.fail(err)
	}
	if !ok {
		return c.fail(fmt.Errorf("key %d not found", key.id))
	}

	out := getOutput{
		Key:       key.id,
		DType:     value.DType.String(),
		Shape:     value.Shape,
		SizeCheck: value.SizeCheck,
		KeyCheck:  value.KeyCheck,
		Bytes:     len(value.Data),
	}
	if err := value.Check(key.id); err != nil {
		out.Warning = err.Error()
	}
	if m, err := tensor.FromEnvelope(value); err == nil {
		out.Matrix = &m
	}
	return c.outputJSON(out)
}

// DeleteCommand removes a tensor
type DeleteCommand struct {
	Meta
}

func (c *DeleteCommand) Synopsis() string { return "Delete a tensor" }

func (c *DeleteCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv delete [options] KEY

  Removes KEY. Exits 1 when it was absent.

Options:

  -volatile         Use the HTTP API and a UUID key
  -grpc-addr=ADDR   gRPC server address
  -http-addr=URL    HTTP server URL
`)
}

func (c *DeleteCommand) Run(args []string) int {
	var over config.Config
	var volatile bool
	fs := c.flagSet("delete")
	c.clientFlags(fs, &over)
	fs.BoolVar(&volatile, "volatile", false, "")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}
	if fs.NArg() != 1 {
		return c.usageError("delete needs exactly one key")
	}
	key, err := parseKey(fs.Arg(0), volatile)
	if err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := c.clientContext()
	defer cancel()

	var existed bool
	if volatile {
		existed, err = c.httpClient(cfg).Delete(ctx, key.uuid)
	} else {
		client, dialErr := c.grpcClient(cfg)
		if dialErr != nil {
			return c.fail(dialErr)
		}
		defer client.Close()
		existed, err = client.Delete(ctx, key.id)
	}
	if err != nil {
		return c.fail(err)
	}
	if !existed {
		return c.fail(fmt.Errorf("key %s not found", fs.Arg(0)))
	}
	c.Ui.Output("deleted " + fs.Arg(0))
	return 0
}

// ListCommand prints every key
type ListCommand struct {
	Meta
}

func (c *ListCommand) Synopsis() string { return "List keys" }

func (c *ListCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv list [options]

  Prints every key, one per line, in ascending order.

Options:

  -volatile         List the HTTP (UUID) keyspace
  -grpc-addr=ADDR   gRPC server address
  -http-addr=URL    HTTP server URL
`)
}

func (c *ListCommand) Run(args []string) int {
	var over config.Config
	var volatile bool
	fs := c.flagSet("list")
	c.clientFlags(fs, &over)
	fs.BoolVar(&volatile, "volatile", false, "")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := c.clientContext()
	defer cancel()

	if volatile {
		keys, err := c.httpClient(cfg).List(ctx)
		if err != nil {
			return c.fail(err)
		}
		for _, k := range keys {
			c.Ui.Output(k.String())
		}
		return 0
	}

	client, err := c.grpcClient(cfg)
	if err != nil {
		return c.fail(err)
	}
	defer client.Close()
	keys, err := client.List(ctx)
	if err != nil {
		return c.fail(err)
	}
	for _, k := range keys {
		c.Ui.Output(strconv.FormatUint(k, 10))
	}
	return 0
}

// HealthCommand checks both servers
type HealthCommand struct {
	Meta
}

func (c *HealthCommand) Synopsis() string { return "Check server health" }

func (c *HealthCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv health [options]

  Calls the gRPC Health RPC, the standard gRPC health service and the HTTP
  /health endpoint. Exits 1 if any of them fails.

Options:

  -grpc-addr=ADDR   gRPC server address
  -http-addr=URL    HTTP server URL
`)
}

func (c *HealthCommand) Run(args []string) int {
	var over config.Config
	fs := c.flagSet("health")
	c.clientFlags(fs, &over)
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := c.clientContext()
	defer cancel()

	code := 0
	client, err := c.grpcClient(cfg)
	if err != nil {
		return c.fail(err)
	}
	defer client.Close()

	if resp, err := client.Health(ctx); err != nil {
		c.Ui.Error("grpc: " + err.Error())
		code = 1
	} else {
		c.Ui.Output(fmt.Sprintf("grpc: %s (%s)", resp.Status, resp.Service))
	}
	if serving, err := client.Serving(ctx); err != nil {
		c.Ui.Error("grpc health service: " + err.Error())
		code = 1
	} else if !serving {
		c.Ui.Error("grpc health service: not serving")
		code = 1
	}
	if resp, err := c.httpClient(cfg).Health(ctx); err != nil {
		c.Ui.Error("http: " + err.Error())
		code = 1
	} else {
		c.Ui.Output(fmt.Sprintf("http: %s (%s)", resp.Status, resp.Service))
	}
	return code
}

// StatsCommand prints keyspace counters from both servers
type StatsCommand struct {
	Meta
}

func (c *StatsCommand) Synopsis() string { return "Show keyspace statistics" }

func (c *StatsCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv stats [options]

  Prints entry counts, logical size and operation counters for the
  persistent (gRPC) and volatile (HTTP) keyspaces as JSON.

Options:

  -grpc-addr=ADDR   gRPC server address
  -http-addr=URL    HTTP server URL
`)
}

func (c *StatsCommand) Run(args []string) int {
	var over config.Config
	fs := c.flagSet("stats")
	c.clientFlags(fs, &over)
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := c.clientContext()
	defer cancel()

	client, err := c.grpcClient(cfg)
	if err != nil {
		return c.fail(err)
	}
	defer client.Close()
	persistent, err := client.Stats(ctx)
	if err != nil {
		return c.fail(err)
	}
	volatile, err := c.httpClient(cfg).Stats(ctx)
	if err != nil {
		return c.fail(err)
	}
	return c.outputJSON(map[string]any{
		"persistent": persistent,
		"volatile":   volatile,
	})
}

// CompactCommand compacts the persistent store
type CompactCommand struct {
	Meta
}

func (c *CompactCommand) Synopsis() string { return "Compact the persistent store" }

func (c *CompactCommand) Help() string {
	return strings.TrimSpace(`
Usage: tensorkv compact [options]

  Runs a synchronous full-range compaction on the server's persistent
  store. Logical content is unchanged.

Options:

  -grpc-addr=ADDR   gRPC server address
`)
}

func (c *CompactCommand) Run(args []string) int {
	var over config.Config
	fs := c.flagSet("compact")
	c.clientFlags(fs, &over)
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}

	cfg := c.resolve(&over)
	ctx, cancel := context.WithTimeout(context.Background(), compactTimeout)
	defer cancel()

	client, err := c.grpcClient(cfg)
	if err != nil {
		return c.fail(err)
	}
	defer client.Close()
	resp, err := client.Compact(ctx)
	if err != nil {
		return c.fail(err)
	}
	c.Ui.Output(resp.Message)
	return 0
}

// VersionCommand prints the version
type VersionCommand struct {
	Meta
}

func (c *VersionCommand) Synopsis() string { return "Print the version" }

func (c *VersionCommand) Help() string {
	return "Usage: tensorkv version"
}

func (c *VersionCommand) Run(_ []string) int {
	c.Ui.Output(binName + " v" + Version)
	return 0
}
