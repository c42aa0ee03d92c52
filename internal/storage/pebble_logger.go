package storage

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/hashicorp/go-hclog"
)

// pebbleLogger adapts an hclog.Logger to the logger interface Pebble expects.
// Engine info messages are chatty (flushes, compactions), so they go to Debug.
type pebbleLogger struct {
	hclog.Logger
}

var _ pebble.Logger = pebbleLogger{}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.Logger.Debug(fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, args...))
}

// Fatalf must not return.
func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
