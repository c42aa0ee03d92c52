package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Options{Level: "warn", Output: &buf})

		log.Info("hidden")
		log.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
		assert.Contains(t, buf.String(), Name)
	})

	t.Run("unknown level means info", func(t *testing.T) {
		log := New(Options{Level: "chatty", Output: &bytes.Buffer{}})
		assert.Equal(t, hclog.Info, log.GetLevel())
	})

	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Options{Level: "info", JSON: true, Output: &buf}).Named("storage")
		log.Info("opened", "path", "/tmp/db")

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "opened", line["@message"])
		assert.Equal(t, "tensorkv.storage", line["@module"])
		assert.Equal(t, "/tmp/db", line["path"])
	})
}
