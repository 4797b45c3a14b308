package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, source, from_symbol, to_symbol, from_address, to_address,
	chain, quantity, usd_amount, price, reason, status, tx_id, error, created_at, executed_at`

// Insert stores a trade outcome. A record whose order id already exists is
// ignored, so the first outcome of an order wins.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	o := rec.Order
	const query = `
		INSERT INTO trade_records (` + tradeSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Source), o.FromSymbol, o.ToSymbol, o.FromAddress, o.ToAddress,
		o.Chain, o.Quantity, o.USDAmount, o.Price, o.Reason,
		string(rec.Status), rec.TxID, rec.Error, o.CreatedAt, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade record %s: %w", o.ID, err)
	}
	return nil
}

// ListRecent returns trade records newest first.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(`SELECT `+tradeSelectCols+` FROM trade_records WHERE TRUE`, "executed_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade records: %w", err)
	}
	defer rows.Close()

	recs, err := scanTradeRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade records: %w", err)
	}
	return recs, nil
}

func scanTradeRecords(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var (
			rec            domain.TradeRecord
			source, status string
		)
		o := &rec.Order
		if err := rows.Scan(
			&o.ID, &source, &o.FromSymbol, &o.ToSymbol, &o.FromAddress, &o.ToAddress,
			&o.Chain, &o.Quantity, &o.USDAmount, &o.Price, &o.Reason,
			&status, &rec.TxID, &rec.Error, &o.CreatedAt, &rec.ExecutedAt,
		); err != nil {
			return nil, err
		}
		o.Source = domain.TradeSource(source)
		rec.Status = domain.TradeStatus(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

var _ domain.TradeStore = (*TradeStore)(nil)
