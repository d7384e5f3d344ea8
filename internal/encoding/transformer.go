// Package encoding builds the JSON payloads sent to the ingestion endpoint.
package encoding

import (
	"time"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
)

// Timestamp formats accepted by TransformConfig.
const (
	TimestampRFC3339 = "rfc3339"
	TimestampUnix    = "unix"
)

// Transformer shapes a record before it is marshaled: it formats the
// timestamp and applies the only/except field filters.
type Transformer struct {
	only            map[string]struct{}
	except          map[string]struct{}
	timestampFormat string
}

// NewTransformer creates a transformer from config. An empty only_fields
// list means all fields pass; except_fields is applied afterwards.
func NewTransformer(cfg config.TransformConfig) *Transformer {
	t := &Transformer{timestampFormat: cfg.TimestampFormat}

	if len(cfg.OnlyFields) > 0 {
		t.only = make(map[string]struct{}, len(cfg.OnlyFields))
		for _, f := range cfg.OnlyFields {
			t.only[f] = struct{}{}
		}
	}
	if len(cfg.ExceptFields) > 0 {
		t.except = make(map[string]struct{}, len(cfg.ExceptFields))
		for _, f := range cfg.ExceptFields {
			t.except[f] = struct{}{}
		}
	}

	return t
}

// FormatTimestamp renders an event timestamp per the configured format.
func (t *Transformer) FormatTimestamp(ts time.Time) any {
	if t.timestampFormat == TimestampUnix {
		return ts.Unix()
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// Apply filters the record in place and returns it.
func (t *Transformer) Apply(record map[string]any) map[string]any {
	if t.only != nil {
		for k := range record {
			if _, keep := t.only[k]; !keep {
				delete(record, k)
			}
		}
	}
	for k := range t.except {
		delete(record, k)
	}
	return record
}
