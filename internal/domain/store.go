package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists executed trade records.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
}

// SnapshotStore persists portfolio status snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, status PortfolioStatus) error
	// First returns the oldest snapshot.
	First(ctx context.Context) (PortfolioStatus, error)
	// LatestBefore returns the newest snapshot taken at or before t.
	LatestBefore(ctx context.Context, t time.Time) (PortfolioStatus, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
