// Package ingestor defines the interface and implementations for log sources.
package ingestor

import (
	"context"

	"github.com/GabrielNunesIT/azmon-shipper/internal/model"
)

// Line size limits shared by the line-oriented ingestors. Lines past
// maxLineBytes are dropped rather than shipped truncated.
const (
	scanBufSize  = 64 * 1024
	maxLineBytes = 1024 * 1024
)

// Ingestor defines the contract for log sources.
// Each ingestor runs in its own goroutine and pushes log events to the output channel.
type Ingestor interface {
	// Start begins ingesting logs and sends them to the output channel.
	// It blocks until the context is cancelled or an unrecoverable error occurs.
	// The implementation must close the output channel when done.
	Start(ctx context.Context, out chan<- *model.LogEvent) error

	// Name returns a unique identifier for this ingestor instance.
	Name() string
}
