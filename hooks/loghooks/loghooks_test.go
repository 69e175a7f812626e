package loghooks

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
)

type line struct {
	level string
	msg   string
	f     tiercache.Fields
}

type captureLogger struct {
	mu    sync.Mutex
	lines []line
}

func (c *captureLogger) add(level, msg string, f tiercache.Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line{level, msg, f})
}

func (c *captureLogger) Debug(msg string, f tiercache.Fields) { c.add("debug", msg, f) }
func (c *captureLogger) Info(msg string, f tiercache.Fields)  { c.add("info", msg, f) }
func (c *captureLogger) Warn(msg string, f tiercache.Fields)  { c.add("warn", msg, f) }
func (c *captureLogger) Error(msg string, f tiercache.Fields) { c.add("error", msg, f) }

func TestSamplingAndRedaction(t *testing.T) {
	l := &captureLogger{}
	h := New(l, Options{SelfHealEvery: 3})

	for i := 0; i < 6; i++ {
		h.SelfHeal("v:user:42", tiercache.L1, "corrupt")
	}
	require.Len(t, l.lines, 2)
	assert.Equal(t, "tiercache.self_heal", l.lines[0].msg)
	assert.NotEqual(t, "v:user:42", l.lines[0].f["key"])
	assert.Len(t, l.lines[0].f["key"], 16)
	assert.Equal(t, "l1", l.lines[0].f["tier"])
}

func TestCustomRedactAndLevels(t *testing.T) {
	l := &captureLogger{}
	h := New(l, Options{Redact: func(string) string { return "***" }})

	h.RemoveOutage("k", errors.New("bump"), errors.New("del"))
	h.BatchDispatched("user", 4, time.Millisecond, errors.New("db down"))
	h.BatchDispatched("user", 4, time.Millisecond, nil)
	h.Hit(tiercache.L2)
	h.Miss()

	require.Len(t, l.lines, 3)
	assert.Equal(t, "error", l.lines[0].level)
	assert.Equal(t, "tiercache.remove_outage", l.lines[0].msg)
	assert.Equal(t, "***", l.lines[0].f["key"])
	assert.Equal(t, "warn", l.lines[1].level)
	assert.Equal(t, "tiercache.batch_failed", l.lines[1].msg)
	assert.Equal(t, "debug", l.lines[2].level)
}
