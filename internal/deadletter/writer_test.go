package deadletter

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/testutil"
)

// captureWriter records everything written to it.
type captureWriter struct {
	buf    bytes.Buffer
	closed bool
}

func (c *captureWriter) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func newCaptureWriter(t *testing.T, cfg config.DeadLetterConfig) (*Writer, *captureWriter) {
	t.Helper()

	capture := &captureWriter{}
	w := NewWriter(cfg, testutil.NewTestLogger(), WithWriterFactory(func(config.DeadLetterConfig) (io.WriteCloser, error) {
		return capture, nil
	}))

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return w, capture
}

func TestRecord_WritesJSONLine(t *testing.T) {
	cfg := config.DeadLetterConfig{Enabled: true, Path: "/tmp/dead.jsonl"}
	w, capture := newCaptureWriter(t, cfg)

	body := []byte(`[{"a":1},{"b":2}]`)
	if err := w.Record("response status: 400 Bad Request", 2, body); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	out := capture.buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected newline-terminated record")
	}

	var got struct {
		Timestamp string          `json:"timestamp"`
		Reason    string          `json:"reason"`
		Events    int             `json:"events"`
		Body      json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}

	if got.Reason != "response status: 400 Bad Request" {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
	if got.Events != 2 {
		t.Errorf("expected 2 events, got %d", got.Events)
	}
	if string(got.Body) != string(body) {
		t.Errorf("expected body embedded verbatim, got %s", got.Body)
	}
	if got.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestRecord_DisabledIsNoop(t *testing.T) {
	w := NewWriter(config.DeadLetterConfig{Enabled: false}, testutil.NewTestLogger())

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Record("reason", 1, []byte(`[]`)); err != nil {
		t.Errorf("expected disabled writer to accept records, got %v", err)
	}
}

func TestClose(t *testing.T) {
	cfg := config.DeadLetterConfig{Enabled: true, Path: "/tmp/dead.jsonl"}
	w, capture := newCaptureWriter(t, cfg)

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !capture.closed {
		t.Error("expected underlying writer to be closed")
	}
}

func TestRecord_MultipleLines(t *testing.T) {
	cfg := config.DeadLetterConfig{Enabled: true, Path: "/tmp/dead.jsonl"}
	w, capture := newCaptureWriter(t, cfg)

	_ = w.Record("r1", 1, []byte(`[{"a":1}]`))
	_ = w.Record("r2", 1, []byte(`[{"b":2}]`))

	lines := strings.Split(strings.TrimSpace(capture.buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if !json.Valid([]byte(l)) {
			t.Errorf("line %d is not valid JSON: %s", i, l)
		}
	}
}
