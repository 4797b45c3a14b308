package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Target
// rows are stored as JSONB next to the total.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Insert stores a portfolio status snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, status domain.PortfolioStatus) error {
	targets, err := json.Marshal(status.Targets)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot targets: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO portfolio_snapshots (taken_at, total_value, source, targets) VALUES ($1, $2, $3, $4)`,
		status.TakenAt, status.TotalValue, status.Source, targets,
	); err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

const snapshotCols = `taken_at, total_value, source, targets`

// First returns the oldest snapshot or domain.ErrNotFound.
func (s *SnapshotStore) First(ctx context.Context) (domain.PortfolioStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotCols+` FROM portfolio_snapshots ORDER BY taken_at ASC LIMIT 1`)
	return scanSnapshot(row, "first")
}

// LatestBefore returns the newest snapshot taken at or before t, or
// domain.ErrNotFound.
func (s *SnapshotStore) LatestBefore(ctx context.Context, t time.Time) (domain.PortfolioStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotCols+` FROM portfolio_snapshots WHERE taken_at <= $1 ORDER BY taken_at DESC LIMIT 1`, t)
	return scanSnapshot(row, "latest before")
}

func scanSnapshot(row pgx.Row, op string) (domain.PortfolioStatus, error) {
	var (
		st      domain.PortfolioStatus
		targets []byte
	)
	if err := row.Scan(&st.TakenAt, &st.TotalValue, &st.Source, &targets); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioStatus{}, domain.ErrNotFound
		}
		return domain.PortfolioStatus{}, fmt.Errorf("postgres: snapshot %s: %w", op, err)
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &st.Targets); err != nil {
			return domain.PortfolioStatus{}, fmt.Errorf("postgres: unmarshal snapshot targets: %w", err)
		}
	}
	return st, nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
