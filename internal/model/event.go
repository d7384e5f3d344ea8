// Package model defines the core data structures used throughout the shipper.
package model

import (
	"time"
)

// LogEvent represents a single log event flowing through the pipeline.
// It carries both the raw log data and any parsed/enriched metadata.
type LogEvent struct {
	// Timestamp is when the log event was ingested.
	Timestamp time.Time

	// Source identifies which ingestor produced this event.
	Source string

	// Raw contains the original log line as received.
	Raw []byte

	// Parsed holds structured fields extracted during processing.
	// Keys are field names, values can be any JSON-compatible type.
	Parsed map[string]any

	// Metadata contains enrichment data like hostname, environment labels, etc.
	Metadata map[string]string
}

// NewLogEvent creates a new LogEvent with initialized maps and current timestamp.
func NewLogEvent(source string, raw []byte) *LogEvent {
	return &LogEvent{
		Timestamp: time.Now(),
		Source:    source,
		Raw:       raw,
		Parsed:    make(map[string]any),
		Metadata:  make(map[string]string),
	}
}

// Clone creates a deep copy of the LogEvent.
// Useful when a batch must stay independent from a caller's buffer reuse.
func (e *LogEvent) Clone() *LogEvent {
	clone := &LogEvent{
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Raw:       make([]byte, len(e.Raw)),
		Parsed:    make(map[string]any, len(e.Parsed)),
		Metadata:  make(map[string]string, len(e.Metadata)),
	}
	copy(clone.Raw, e.Raw)
	for k, v := range e.Parsed {
		clone.Parsed[k] = v
	}
	for k, v := range e.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
