package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/position"
)

// BlobWriter is the narrow upload surface the archiver needs; Writer
// satisfies it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SettlementArchiver periodically uploads newly recorded settlements as
// JSONL to S3-compatible storage, so the settlement log can grow
// unboundedly in memory without losing history across restarts.
type SettlementArchiver struct {
	writer BlobWriter
	source func() []position.Settlement

	uploaded int // count already archived; settlements are append-only
}

// NewSettlementArchiver returns an archiver that reads from source on each
// Run call. source is typically tracker.Settlements.
func NewSettlementArchiver(writer BlobWriter, source func() []position.Settlement) *SettlementArchiver {
	return &SettlementArchiver{writer: writer, source: source}
}

// Run uploads any settlements recorded since the last call as a single
// JSONL object at archive/settlements/<cutoff>.jsonl, and returns the number
// archived. A zero count with a nil error means nothing new was found.
func (a *SettlementArchiver) Run(ctx context.Context, cutoff time.Time) (int, error) {
	all := a.source()
	if a.uploaded >= len(all) {
		return 0, nil
	}
	fresh := all[a.uploaded:]

	buf, err := marshalJSONL(fresh)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	a.uploaded = len(all)
	return len(fresh), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month-day of the cutoff time and named by its time of day, so runs on
// the same day write separate objects.
//
//	archive/settlements/2025-01-15/093000.jsonl
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.Format("2006-01-02/150405"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
