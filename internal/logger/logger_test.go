package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, time.UTC).With("issuer")

	l.Info("grant_issued", Fields{"grant_id": "g-1"})
	l.Warn("security_scope_mismatch", Fields{"component": "content"})
	l.Error("storage_failed", Fields{"error": errors.New("boom")})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "grant_issued", lines[0]["msg"])
	assert.Equal(t, "issuer", lines[0]["component"])
	assert.Equal(t, "g-1", lines[0]["grant_id"])
	assert.NotEmpty(t, lines[0]["ts"])

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "content", lines[1]["component"])

	assert.Equal(t, "error", lines[2]["level"])
	assert.Equal(t, "boom", lines[2]["error"])
}

func TestLogger_LogDerivesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)

	l.Log(Fields{"event": "db_migration_failed", "status": "error"})
	l.Log(Fields{"event": "db_migration_step", "status": "success"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "info", lines[1]["level"])
	assert.Nil(t, lines[0]["msg"])
}

func TestLogger_LogMessageField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)

	l.Log(Fields{"event": "db_migration_skipped", "msg": "schema already exists", "level": "warn"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "schema already exists", lines[0]["msg"])
	assert.Equal(t, "warn", lines[0]["level"])
}

func TestLogger_TimestampInLocation(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	var buf bytes.Buffer
	New(&buf, loc).Info("tick", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	ts, err := time.Parse(time.RFC3339Nano, lines[0]["ts"].(string))
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Equal(t, 7*3600, offset)
	assert.Nil(t, lines[0]["time"])
}

// syncCheckWriter fails the test if two writes overlap.
type syncCheckWriter struct {
	mu      sync.Mutex
	active  bool
	overlap bool
	buf     bytes.Buffer
}

func (w *syncCheckWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.active {
		w.overlap = true
	}
	w.active = true
	w.mu.Unlock()

	time.Sleep(time.Microsecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = false
	return w.buf.Write(p)
}

func TestLogger_ChildrenShareWriterLock(t *testing.T) {
	w := &syncCheckWriter{}
	root := New(w, time.UTC)
	children := []*Logger{root, root.With("access"), root.With("content"), root.With("viewer")}

	var wg sync.WaitGroup
	for _, l := range children {
		wg.Add(1)
		go func(l *Logger) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Info("tick", Fields{"i": i})
			}
		}(l)
	}
	wg.Wait()

	assert.False(t, w.overlap)
	assert.Len(t, decodeLines(t, &w.buf), 200)
}
