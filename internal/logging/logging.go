// Package logging builds the process root logger.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Name is the root logger name; components use Named sub-loggers.
const Name = "tensorkv"

// Options configures New
type Options struct {
	Level  string    // hclog level name; unknown names mean info
	JSON   bool      // emit JSON lines instead of text
	Output io.Writer // defaults to stderr
}

// New returns a root logger for the given options.
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            Name,
		Level:           level,
		Output:          out,
		JSONFormat:      opts.JSON,
		IncludeLocation: level <= hclog.Debug,
		TimeFormat:      "2006-01-02T15:04:05.000Z0700",
		Color:           hclog.ColorOff,
	})
}
