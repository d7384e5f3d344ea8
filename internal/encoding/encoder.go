package encoding

import (
	"bytes"
	"encoding/json"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/model"
)

// Encoder turns log events into the flat JSON records the ingestion stream
// expects. Events are encoded one at a time so the batcher can account for
// payload size precisely; Assemble joins them into the final array body.
type Encoder struct {
	transformer *Transformer
}

// NewEncoder creates an encoder with the given transform settings.
func NewEncoder(cfg config.TransformConfig) *Encoder {
	return &Encoder{transformer: NewTransformer(cfg)}
}

// EncodeEvent marshals a single event into one JSON record.
func (e *Encoder) EncodeEvent(event *model.LogEvent) ([]byte, error) {
	return json.Marshal(e.record(event))
}

// record builds the flat JSON object for one event.
func (e *Encoder) record(event *model.LogEvent) map[string]any {
	data := map[string]any{
		"timestamp": e.transformer.FormatTimestamp(event.Timestamp),
		"source":    event.Source,
		"message":   string(event.Raw),
	}

	// Merge parsed fields
	for k, v := range event.Parsed {
		data[k] = v
	}

	// Merge metadata
	for k, v := range event.Metadata {
		data[k] = v
	}

	return e.transformer.Apply(data)
}

// Assemble joins encoded records into a single JSON array body,
// comma-delimited inside brackets.
func Assemble(records [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(rec)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
