//go:build linux && cgo

package ingestor

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/model"
)

// JournalIngestor reads logs from the systemd journal.
type JournalIngestor struct {
	cfg  config.JournalIngestorConfig
	name string
}

// NewJournalIngestor creates a new systemd journal ingestor.
func NewJournalIngestor(cfg config.JournalIngestorConfig) *JournalIngestor {
	return &JournalIngestor{
		cfg:  cfg,
		name: "journal",
	}
}

// Name returns the ingestor identifier.
func (j *JournalIngestor) Name() string {
	return j.name
}

// Start begins reading from the systemd journal.
func (j *JournalIngestor) Start(ctx context.Context, out chan<- *model.LogEvent) error {
	defer close(out)

	journal, err := sdjournal.NewJournal()
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	if err := j.addFilters(journal); err != nil {
		return err
	}

	// Seek to the end to only get new entries
	if err := journal.SeekTail(); err != nil {
		return fmt.Errorf("seeking to journal tail: %w", err)
	}
	// Move back one entry so we don't miss the first new one
	if _, err := journal.Previous(); err != nil {
		return fmt.Errorf("moving to previous entry: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Wake up at least once a second so cancellation is noticed
		// even when the journal stays quiet.
		status := journal.Wait(time.Second)
		if status == sdjournal.SD_JOURNAL_NOP {
			continue
		}

		// Read all available entries
		for {
			n, err := journal.Next()
			if err != nil {
				return fmt.Errorf("reading next entry: %w", err)
			}
			if n == 0 {
				break // No more entries
			}

			event, err := j.journalEntryToLogEvent(journal)
			if err != nil {
				continue // Skip malformed entries
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// addFilters installs unit and identifier matches. Matches on the same field
// OR together; the disjunction separates the unit group from the identifier
// group so an entry passes when either side matches.
func (j *JournalIngestor) addFilters(journal *sdjournal.Journal) error {
	for _, unit := range j.cfg.Units {
		if err := journal.AddMatch(fmt.Sprintf("_SYSTEMD_UNIT=%s", unit)); err != nil {
			return fmt.Errorf("adding unit filter %q: %w", unit, err)
		}
	}

	if len(j.cfg.Units) > 0 && len(j.cfg.Identifiers) > 0 {
		if err := journal.AddDisjunction(); err != nil {
			return fmt.Errorf("adding filter disjunction: %w", err)
		}
	}

	for _, ident := range j.cfg.Identifiers {
		if err := journal.AddMatch(fmt.Sprintf("SYSLOG_IDENTIFIER=%s", ident)); err != nil {
			return fmt.Errorf("adding identifier filter %q: %w", ident, err)
		}
	}

	return nil
}

// journalEntryToLogEvent converts a journal entry to a LogEvent.
func (j *JournalIngestor) journalEntryToLogEvent(journal *sdjournal.Journal) (*model.LogEvent, error) {
	jEntry, err := journal.GetEntry()
	if err != nil {
		return nil, err
	}

	// Get the message field
	message := jEntry.Fields["MESSAGE"]
	event := model.NewLogEvent(j.name, []byte(message))

	// Copy relevant journal fields to parsed
	fieldMappings := map[string]string{
		"_SYSTEMD_UNIT":     "unit",
		"_PID":              "pid",
		"_UID":              "uid",
		"_GID":              "gid",
		"_COMM":             "command",
		"_EXE":              "executable",
		"_HOSTNAME":         "hostname",
		"PRIORITY":          "priority",
		"SYSLOG_FACILITY":   "facility",
		"SYSLOG_IDENTIFIER": "identifier",
	}

	for jField, parsedField := range fieldMappings {
		if val, ok := jEntry.Fields[jField]; ok {
			event.Parsed[parsedField] = val
		}
	}

	// Set timestamp from journal (RealtimeTimestamp is in microseconds)
	event.Timestamp = time.UnixMicro(int64(jEntry.RealtimeTimestamp))

	return event, nil
}
