package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tensorkv/internal/config"
	"github.com/dreamware/tensorkv/internal/tensor"
)

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := realMain([]string{"version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "tensorkv v"+Version+"\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestUnknownCommandPrintsHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := realMain([]string{"frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 127, code)
	assert.Contains(t, stdout.String()+stderr.String(), "serve")
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    []uint64
		wantErr bool
	}{
		{"", nil, false},
		{"4", []uint64{4}, false},
		{"2,3", []uint64{2, 3}, false},
		{" 2 , 3 ,1", []uint64{2, 3, 1}, false},
		{"2,x", nil, true},
		{"-1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseShape(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"1", "-2.5", "1e3"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2.5, 1000}, got)

	_, err = parseValues([]string{"1", "two"})
	assert.ErrorContains(t, err, `invalid value "two"`)
}

func TestParseKey(t *testing.T) {
	k, err := parseKey("12345", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), k.id)

	_, err = parseKey("-1", false)
	assert.Error(t, err)

	u := uuid.New()
	k, err = parseKey(u.String(), true)
	require.NoError(t, err)
	assert.Equal(t, u, k.uuid)

	_, err = parseKey("12345", true)
	assert.Error(t, err)
}

func TestServeValidatesConfig(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := &ServeCommand{Meta: Meta{Ui: ui, Config: config.DefaultConfig(), LogOutput: io.Discard}}

	code := cmd.Run([]string{"-grpc-listen", "nope", "-data-dir", t.TempDir()})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "grpc listen address")
}

// runServer starts serve on ephemeral ports and returns client flags
// addressing it. The server stops when the test ends.
func runServer(t *testing.T) (Meta, []string) {
	t.Helper()

	shutdown := make(chan struct{})
	meta := Meta{
		Ui:         cli.NewMockUi(),
		Config:     config.DefaultConfig(),
		LogOutput:  io.Discard,
		ShutdownCh: shutdown,
	}

	type addrs struct{ grpc, http string }
	ready := make(chan addrs, 1)
	cmd := &ServeCommand{
		Meta: meta,
		Listening: func(grpcAddr, httpAddr string) {
			ready <- addrs{grpcAddr, httpAddr}
		},
	}

	dataDir := t.TempDir()
	done := make(chan int, 1)
	go func() {
		done <- cmd.Run([]string{
			"-data-dir", dataDir,
			"-grpc-listen", "127.0.0.1:0",
			"-http-listen", "127.0.0.1:0",
			"-no-sync",
			"-log-level", "error",
		})
	}()

	var a addrs
	select {
	case a = <-ready:
	case code := <-done:
		t.Fatalf("serve exited early with %d: %s", code, meta.Ui.(*cli.MockUi).ErrorWriter.String())
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not start")
	}

	t.Cleanup(func() {
		close(shutdown)
		select {
		case code := <-done:
			assert.Equal(t, 0, code, "serve exit code")
		case <-time.After(10 * time.Second):
			t.Error("serve did not stop")
		}
	})
	return meta, []string{"-grpc-addr", a.grpc, "-http-addr", "http://" + a.http}
}

// run executes a client command with a fresh UI and returns its exit code
// and output.
func run(t *testing.T, meta Meta, factory func(Meta) cli.Command, args ...string) (int, string, string) {
	t.Helper()
	ui := cli.NewMockUi()
	meta.Ui = ui
	code := factory(meta).Run(args)
	return code, ui.OutputWriter.String(), ui.ErrorWriter.String()
}

func TestClientCommands(t *testing.T) {
	meta, addr := runServer(t)

	put := func(m Meta) cli.Command { return &PutCommand{Meta: m} }
	get := func(m Meta) cli.Command { return &GetCommand{Meta: m} }
	del := func(m Meta) cli.Command { return &DeleteCommand{Meta: m} }
	list := func(m Meta) cli.Command { return &ListCommand{Meta: m} }
	health := func(m Meta) cli.Command { return &HealthCommand{Meta: m} }
	stats := func(m Meta) cli.Command { return &StatsCommand{Meta: m} }
	compact := func(m Meta) cli.Command { return &CompactCommand{Meta: m} }
	with := func(flags ...string) []string { return append(append([]string{}, addr...), flags...) }

	t.Run("health", func(t *testing.T) {
		code, out, errOut := run(t, meta, health, addr...)
		assert.Equal(t, 0, code, errOut)
		assert.Contains(t, out, "grpc: healthy (tensorkv)")
		assert.Contains(t, out, "http: healthy (tensorkv)")
	})

	t.Run("grpc round trip", func(t *testing.T) {
		code, out, errOut := run(t, meta, put, with("-shape", "2,2", "12345", "1", "2", "3", "-4")...)
		require.Equal(t, 0, code, errOut)
		assert.Equal(t, "Value stored successfully\n", out)

		code, out, _ = run(t, meta, put, with("-shape", "2,2", "12345", "1", "2", "3", "4")...)
		require.Equal(t, 0, code)
		assert.Equal(t, "Value updated successfully\n", out)

		code, out, errOut = run(t, meta, get, with("12345")...)
		require.Equal(t, 0, code, errOut)
		var got getOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "fp64", got.DType)
		assert.Equal(t, []uint64{2, 2}, got.Shape)
		assert.Equal(t, uint64(32), got.SizeCheck)
		assert.Equal(t, uint64(12345), got.KeyCheck)
		assert.Empty(t, got.Warning)
		require.NotNil(t, got.Matrix)
		assert.Equal(t, tensor.New([]float64{1, 2, 3, 4}, 2, 2), *got.Matrix)

		code, out, _ = run(t, meta, list, addr...)
		require.Equal(t, 0, code)
		assert.Equal(t, "12345\n", out)

		code, _, errOut = run(t, meta, compact, addr...)
		assert.Equal(t, 0, code, errOut)

		code, out, _ = run(t, meta, del, with("12345")...)
		require.Equal(t, 0, code)
		assert.Equal(t, "deleted 12345\n", out)

		code, _, errOut = run(t, meta, del, with("12345")...)
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "not found")

		code, _, errOut = run(t, meta, get, with("12345")...)
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "not found")
	})

	t.Run("http round trip", func(t *testing.T) {
		key := uuid.New().String()
		code, out, errOut := run(t, meta, put, with("-volatile", key, "0.5", "1.5")...)
		require.Equal(t, 0, code, errOut)
		assert.Equal(t, "Matrix stored successfully\n", out)

		code, out, _ = run(t, meta, get, with("-volatile", key)...)
		require.Equal(t, 0, code)
		var m tensor.Matrix
		require.NoError(t, json.Unmarshal([]byte(out), &m))
		assert.Equal(t, tensor.New([]float64{0.5, 1.5}, 2), m)

		code, out, _ = run(t, meta, list, with("-volatile")...)
		require.Equal(t, 0, code)
		assert.Equal(t, key+"\n", out)

		code, _, _ = run(t, meta, del, with("-volatile", key)...)
		assert.Equal(t, 0, code)
	})

	t.Run("stats", func(t *testing.T) {
		code, out, errOut := run(t, meta, stats, addr...)
		require.Equal(t, 0, code, errOut)
		var got map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Contains(t, got, "persistent")
		assert.Contains(t, got, "volatile")
		assert.Contains(t, string(got["volatile"]), `"kind": "volatile"`)
	})

	t.Run("usage errors", func(t *testing.T) {
		tests := []struct {
			name string
			cmd  func(Meta) cli.Command
			args []string
			want string
		}{
			{"put without values", put, with("1"), "at least one value"},
			{"put bad shape", put, with("-shape", "3", "1", "1", "2"), "shape"},
			{"put bad key", put, with("abc", "1"), "invalid key"},
			{"get two keys", get, with("1", "2"), "exactly one key"},
			{"delete bad uuid", del, with("-volatile", "1"), "invalid UUID"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				code, _, errOut := run(t, meta, tt.cmd, tt.args...)
				assert.Equal(t, cli.RunResultHelp, code)
				assert.True(t, strings.Contains(errOut, tt.want), "stderr: %s", errOut)
			})
		}
	})
}
