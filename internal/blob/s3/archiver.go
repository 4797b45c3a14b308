package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// TradeArchiver copies a day of trade records from the trade store to
// object storage as JSON lines. Records are not deleted from the store.
type TradeArchiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	audit  domain.AuditStore
	prefix string
}

// NewTradeArchiver creates a TradeArchiver writing under prefix. audit may
// be nil.
func NewTradeArchiver(writer domain.BlobWriter, trades domain.TradeStore, audit domain.AuditStore, prefix string) *TradeArchiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &TradeArchiver{writer: writer, trades: trades, audit: audit, prefix: prefix}
}

// ArchiveDay uploads the records executed on day (UTC) to
// {prefix}/trades/YYYY/MM/DD.jsonl and returns how many were written.
func (a *TradeArchiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Nanosecond)

	recs, err := a.trades.ListRecent(ctx, domain.ListOpts{Since: &start, Until: &end})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}
	key := archiveKey(a.prefix, start)
	if err := a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.trades", map[string]any{
			"path":  key,
			"count": len(recs),
			"day":   start.Format(time.DateOnly),
		}); err != nil {
			return len(recs), fmt.Errorf("s3blob: archive trades audit log: %w", err)
		}
	}
	return len(recs), nil
}

func archiveKey(prefix string, day time.Time) string {
	return path.Join(prefix, "trades", day.Format("2006/01/02")+".jsonl")
}

// marshalJSONL encodes records as newline-delimited JSON.
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
