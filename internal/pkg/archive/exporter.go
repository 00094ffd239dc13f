package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditGate/app/models"
)

const contentTypeJSONLines = "application/x-ndjson"

// LedgerSource lists ledger entries in a half-open time range.
type LedgerSource interface {
	ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.CreditLedgerEntry, error)
}

// Result summarizes one exported day.
type Result struct {
	Key     string
	Entries int
	Bytes   int
}

// Exporter writes one UTC day of ledger entries as JSON lines.
type Exporter struct {
	source LedgerSource
	store  ObjectStore
	config *Config
}

func NewExporter(source LedgerSource, store ObjectStore, cfg *Config) *Exporter {
	return &Exporter{source: source, store: store, config: cfg}
}

// ExportDay uploads every entry created on day's UTC date. Empty days still
// produce an (empty) object so gaps are distinguishable from failures.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (*Result, error) {
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	entries, err := e.source.ListLedgerEntriesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}

	body, err := encodeJSONLines(entries)
	if err != nil {
		return nil, err
	}

	key := e.config.ObjectKey(from)
	if err := e.store.PutObject(ctx, key, body, contentTypeJSONLines); err != nil {
		return nil, err
	}

	log.Infof("[Archive] Exported %d ledger entries for %s to %s", len(entries), from.Format("2006-01-02"), key)
	return &Result{Key: key, Entries: len(entries), Bytes: len(body)}, nil
}

func encodeJSONLines(entries []models.CreditLedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return nil, fmt.Errorf("encode ledger entry %s: %w", entries[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}
