package pipeline

import (
	"sync"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/delivery"
	"github.com/GabrielNunesIT/azmon-shipper/internal/encoding"
	"github.com/GabrielNunesIT/azmon-shipper/internal/model"
)

// Batcher accumulates encoded events until a size, count, or the caller's
// timer says the batch is ready. Byte accounting counts encoded event bytes;
// the bracket and comma framing Assemble adds is excluded.
type Batcher struct {
	mu      sync.Mutex
	cfg     config.BatchConfig
	encoder *encoding.Encoder
	chunks  [][]byte
	bytes   int
}

// NewBatcher creates a batcher with the given limits and encoder.
func NewBatcher(cfg config.BatchConfig, encoder *encoding.Encoder) *Batcher {
	return &Batcher{
		cfg:     cfg,
		encoder: encoder,
	}
}

// Add encodes the event into the current batch. When the addition would push
// the batch past its byte budget, the previous batch is returned ready to
// send and the event starts a fresh one. When the addition itself fills the
// batch, the filled batch is returned. Otherwise the return is nil.
//
// An event larger than the byte budget on its own still ships; it leaves on
// the next Add or timer flush as a single-event batch.
func (b *Batcher) Add(event *model.LogEvent) (*delivery.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chunk, err := b.encoder.EncodeEvent(event)
	if err != nil {
		return nil, err
	}

	var ready *delivery.Request
	if len(b.chunks) > 0 && b.bytes+len(chunk) > b.cfg.MaxBytes {
		ready = b.flushLocked()
	}

	b.chunks = append(b.chunks, chunk)
	b.bytes += len(chunk)

	if ready == nil && b.fullLocked() {
		ready = b.flushLocked()
	}

	return ready, nil
}

// Flush drains the current batch into a request, or nil when empty.
func (b *Batcher) Flush() *delivery.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// Len returns the number of events in the current batch.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Reconfigure swaps the limits and encoder. Pending chunks are kept; they
// were encoded under the previous settings and flush as usual.
func (b *Batcher) Reconfigure(cfg config.BatchConfig, encoder *encoding.Encoder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	b.encoder = encoder
}

// fullLocked reports whether the batch reached a configured limit.
func (b *Batcher) fullLocked() bool {
	if b.bytes >= b.cfg.MaxBytes {
		return true
	}
	if b.cfg.MaxEvents > 0 && len(b.chunks) >= b.cfg.MaxEvents {
		return true
	}
	return false
}

// flushLocked builds the request from the accumulated chunks (caller must
// hold the lock).
func (b *Batcher) flushLocked() *delivery.Request {
	if len(b.chunks) == 0 {
		return nil
	}

	req := &delivery.Request{
		Body:           encoding.Assemble(b.chunks),
		Events:         len(b.chunks),
		EventsByteSize: b.bytes,
	}

	b.chunks = nil
	b.bytes = 0
	return req
}
