package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

// multipartThreshold is the month-object size above which uploads go through
// the multipart manager instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.PositionArchiver by appending closed positions
// to month-partitioned JSONL objects:
//
//	{prefix}/positions/2025-11.jsonl
//
// Each call is a read-modify-write: the existing month object is fetched,
// the new rows are appended, and the whole object is rewritten. Deletion of
// the archived rows from the primary store is intentionally NOT performed
// here; the store stays the system of record.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates a new Archiver. prefix is the key prefix under which
// month objects are written; empty defaults to "archive".
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore, prefix string) *Archiver {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		prefix: prefix,
	}
}

// archiveRecord is the JSONL row written for each closed position. Line
// identity is rendered as its stable key string; pointers stay pointers so
// stale closes serialize with their exit fields absent.
type archiveRecord struct {
	ID             string    `json:"id"`
	Line           string    `json:"line"`
	EventID        int64     `json:"event_id"`
	League         int       `json:"league"`
	Direction      string    `json:"direction"`
	Size           float64   `json:"size"`
	EntryPoints    float64   `json:"entry_points"`
	EntryPrice     float64   `json:"entry_price"`
	EntryDeviation float64   `json:"entry_deviation"`
	Confidence     float64   `json:"confidence"`
	OpenedAt       time.Time `json:"opened_at"`
	ClosedAt       time.Time `json:"closed_at"`
	ExitReason     string    `json:"exit_reason"`
	ExitPoints     *float64  `json:"exit_points,omitempty"`
	ExitPrice      *float64  `json:"exit_price,omitempty"`
	ExitDeviation  *float64  `json:"exit_deviation,omitempty"`
	PnL            *float64  `json:"pnl,omitempty"`
	ClosedStale    bool      `json:"closed_stale,omitempty"`
}

func toRecord(p domain.Position) archiveRecord {
	rec := archiveRecord{
		ID:             p.ID,
		Line:           p.Line.Key(),
		EventID:        p.Line.EventID,
		League:         int(p.League),
		Direction:      string(p.Direction),
		Size:           p.Size,
		EntryPoints:    p.EntryPoints,
		EntryPrice:     p.EntryPrice,
		EntryDeviation: p.EntryDeviation,
		Confidence:     p.Confidence,
		OpenedAt:       p.OpenedAt.UTC(),
		ExitReason:     string(p.ExitReason),
		ExitPoints:     p.ExitPoints,
		ExitPrice:      p.ExitPrice,
		ExitDeviation:  p.ExitDeviation,
		PnL:            p.PnL,
		ClosedStale:    p.ClosedStale,
	}
	if p.ClosedAt != nil {
		rec.ClosedAt = p.ClosedAt.UTC()
	}
	return rec
}

// ArchiveClosed groups the positions by the UTC month they closed in,
// appends each group to its month object, and records one audit entry per
// object written. Positions without a close timestamp are skipped.
func (a *Archiver) ArchiveClosed(ctx context.Context, positions []domain.Position) error {
	byMonth := make(map[string][]archiveRecord)
	for _, p := range positions {
		if p.ClosedAt == nil {
			continue
		}
		month := p.ClosedAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], toRecord(p))
	}
	if len(byMonth) == 0 {
		return nil
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	for _, month := range months {
		if err := a.archiveMonth(ctx, month, byMonth[month]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) archiveMonth(ctx context.Context, month string, records []archiveRecord) error {
	path := fmt.Sprintf("%s/positions/%s.jsonl", a.prefix, month)

	existing, err := a.existing(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive positions read %s: %w", path, err)
	}

	rows, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}
	buf := append(existing, rows...)

	if int64(len(buf)) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":  path,
		"count": int64(len(records)),
		"month": month,
	}); err != nil {
		return fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}
	return nil
}

// existing returns the current month object, or nil when it does not exist
// yet.
func (a *Archiver) existing(ctx context.Context, path string) ([]byte, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
