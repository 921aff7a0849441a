package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulelabs/marketd/internal/domain"
)

// maxArchiveBatch caps how many journal events one archive run exports.
const maxArchiveBatch = 10_000

// JournalArchiver exports event journal segments to S3 cold storage as
// JSONL. The journal itself stays authoritative; archives are a durable
// off-site copy for indexers and audits.
type JournalArchiver struct {
	writer  *Writer
	journal domain.EventJournal
}

// NewJournalArchiver creates a JournalArchiver uploading through writer.
func NewJournalArchiver(writer *Writer, journal domain.EventJournal) *JournalArchiver {
	return &JournalArchiver{writer: writer, journal: journal}
}

// ArchiveEvents exports events in [since, until) and returns the count, the
// uploaded object key, and the timestamp of the last exported event. A run
// with nothing to export returns count 0 and an empty key.
func (a *JournalArchiver) ArchiveEvents(ctx context.Context, since, until time.Time) (int, string, time.Time, error) {
	events, err := a.journal.ListSince(ctx, since, domain.ListOpts{Limit: maxArchiveBatch})
	if err != nil {
		return 0, "", time.Time{}, fmt.Errorf("s3blob: archive query: %w", err)
	}

	kept := events[:0]
	last := since
	for _, e := range events {
		if !e.At.Before(until) {
			continue
		}
		kept = append(kept, e)
		if e.At.After(last) {
			last = e.At
		}
	}
	if len(kept) == 0 {
		return 0, "", since, nil
	}

	buf, err := marshalJSONL(kept)
	if err != nil {
		return 0, "", time.Time{}, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(until)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, "", time.Time{}, fmt.Errorf("s3blob: archive upload: %w", err)
	}
	return len(kept), key, last, nil
}

// archiveKey builds the object key for an archive segment, partitioned by
// day with the cutoff time for uniqueness within a day:
//
//	archive/events/2026-08-30/150405.jsonl
func archiveKey(until time.Time) string {
	return fmt.Sprintf("archive/events/%s/%s.jsonl",
		until.UTC().Format("2006-01-02"), until.UTC().Format("150405"))
}

// marshalJSONL serializes events one JSON object per line.
func marshalJSONL(events []domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encoding event %s: %w", e.ID, err)
		}
	}
	return buf.Bytes(), nil
}
