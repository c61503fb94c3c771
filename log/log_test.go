package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRoot(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Root()
	t.Cleanup(func() { SetDefault(prev) })

	buf := new(bytes.Buffer)
	SetDefault(NewLogger(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: LevelTrace})))
	return buf
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	buf := captureRoot(t)
	DisableModule(VMMonitoring)

	Debug(VMMonitoring, "hidden")
	assert.NotContains(t, buf.String(), "hidden")

	Info(VMMonitoring, "shown", "k", 1)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "module=vm_mod")

	EnableModules("vm_mod, rt_mod")
	t.Cleanup(func() {
		DisableModule(VMMonitoring)
		DisableModule(RuntimeMonitoring)
	})
	Debug(VMMonitoring, "now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestJSONHandler(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogger(NewJSONHandlerWithLevel(buf, LevelDebug)).With("chain", "main")
	l.Trace(ChainMonitoring, "dropped")
	l.Warn(ChainMonitoring, "block rejected", "height", 3)
	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"level":"WARN "`)
	assert.Contains(t, out, `"module":"chain_mod"`)
	assert.Contains(t, out, `"chain":"main"`)
	assert.Contains(t, out, `"height":3`)
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	prev := Root()
	t.Cleanup(func() { SetDefault(prev) })
	assert.Error(t, InitLogger("loud", false))
	require.NoError(t, InitLogger("warn", true))
}

func TestDiscardHandler(t *testing.T) {
	l := NewLogger(DiscardHandler())
	assert.False(t, l.Enabled(context.Background(), LevelCrit))
	l.Info(VMMonitoring, "nothing")
}
