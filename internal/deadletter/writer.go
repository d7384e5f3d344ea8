// Package deadletter persists batches the delivery path gave up on so
// operators can inspect or replay them.
package deadletter

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/natefinch/lumberjack"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
)

// WriterFactory creates a new WriteCloser.
type WriterFactory func(cfg config.DeadLetterConfig) (io.WriteCloser, error)

// Option configures the Writer.
type Option func(*Writer)

// WithWriterFactory sets a custom factory for creating the writer.
func WithWriterFactory(f WriterFactory) Option {
	return func(w *Writer) {
		w.factory = f
	}
}

// line is written once per dropped batch. Body is the original JSON array,
// embedded verbatim so a replay tool can resubmit it as-is.
type line struct {
	Timestamp string          `json:"timestamp"`
	Reason    string          `json:"reason"`
	Events    int             `json:"events"`
	Body      json.RawMessage `json:"body"`
}

// Writer appends dropped batches to a rotating JSON-lines file. A disabled
// writer accepts records and discards them.
type Writer struct {
	cfg     config.DeadLetterConfig
	factory WriterFactory
	writer  io.WriteCloser
	mu      sync.Mutex
	logger  logger.ILogger
}

// NewWriter creates a dead-letter writer.
func NewWriter(cfg config.DeadLetterConfig, log logger.ILogger, opts ...Option) *Writer {
	w := &Writer{
		cfg:    cfg,
		logger: log.SubLogger("DeadLetter"),
	}

	// Default factory creates a lumberjack rotating file
	w.factory = func(cfg config.DeadLetterConfig) (io.WriteCloser, error) {
		return &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start initializes the rotating file writer. No-op when disabled.
func (w *Writer) Start() error {
	if !w.cfg.Enabled {
		return nil
	}

	writer, err := w.factory(w.cfg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.writer = writer
	w.mu.Unlock()

	w.logger.Infof("dead letter enabled: path=%s", w.cfg.Path)
	return nil
}

// Close closes the file writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		return w.writer.Close()
	}
	return nil
}

// Record writes one dropped batch. body must be the encoded JSON array the
// delivery attempt used.
func (w *Writer) Record(reason string, events int, body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		return nil
	}

	output, err := json.Marshal(line{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Reason:    reason,
		Events:    events,
		Body:      json.RawMessage(body),
	})
	if err != nil {
		return err
	}

	_, err = w.writer.Write(append(output, '\n'))
	return err
}
