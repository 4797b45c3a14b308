// Package executor submits sized trade orders to the trading API one at a
// time and records every outcome.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// TradeSubmitter executes a swap on the trading API. The Recall client
// implements it.
type TradeSubmitter interface {
	ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error)
}

// Quoter fetches a pre-trade quote. It is optional.
type Quoter interface {
	Quote(ctx context.Context, req domain.TradeRequest) (domain.Quote, error)
}

// RiskChecker validates an order before submission. quote is nil when no
// quote could be obtained.
type RiskChecker interface {
	CheckTrade(ctx context.Context, order domain.TradeOrder, quote *domain.Quote) error
}

// RateLimit is a shared submission budget enforced through a
// domain.RateLimiter.
type RateLimit struct {
	Limiter domain.RateLimiter
	Key     string
	Limit   int
	Window  time.Duration
}

const rateLimitPoll = 250 * time.Millisecond

// Executor submits orders sequentially with a fixed pause between them.
// Dedup, risk checks, rate limiting, persistence and event publishing are
// each optional.
type Executor struct {
	submitter TradeSubmitter
	quoter    Quoter
	risk      RiskChecker
	dedup     *Dedup
	rateLimit *RateLimit
	trades    domain.TradeStore
	audit     domain.AuditStore
	bus       domain.SignalBus
	dryRun    bool
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor that submits through submitter.
func NewExecutor(submitter TradeSubmitter, logger *slog.Logger) *Executor {
	return &Executor{
		submitter: submitter,
		dedup:     NewDedup(10 * time.Minute),
		logger:    logger.With(slog.String("component", "executor")),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepContext,
	}
}

// SetDryRun toggles dry-run mode: orders are checked and recorded but never
// sent to the API.
func (e *Executor) SetDryRun(dryRun bool) { e.dryRun = dryRun }

// DryRun reports whether dry-run mode is on.
func (e *Executor) DryRun() bool { return e.dryRun }

// SetRiskChecker installs pre-trade checks. When quoter is not nil a quote
// is fetched for each order and handed to the checker.
func (e *Executor) SetRiskChecker(risk RiskChecker, quoter Quoter) {
	e.risk = risk
	e.quoter = quoter
}

// SetRateLimit enables a shared rate limit on submissions.
func (e *Executor) SetRateLimit(rl RateLimit) {
	if rl.Limiter == nil {
		e.rateLimit = nil
		return
	}
	e.rateLimit = &rl
}

// SetRecording wires persistence and event publishing. Any argument may be
// nil.
func (e *Executor) SetRecording(trades domain.TradeStore, audit domain.AuditStore, bus domain.SignalBus) {
	e.trades = trades
	e.audit = audit
	e.bus = bus
}

// SetDedupTTL replaces the dedup window.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}

// Execute submits orders in order, pausing between them. A failed order is
// recorded and the loop continues. Cancelling ctx stops the loop between
// orders; orders already submitted are not rolled back.
func (e *Executor) Execute(ctx context.Context, orders []domain.TradeOrder, pause time.Duration) ([]domain.TradeRecord, error) {
	e.dedup.Cleanup()

	records := make([]domain.TradeRecord, 0, len(orders))
	for i, order := range orders {
		if i > 0 {
			if err := e.sleep(ctx, pause); err != nil {
				return records, fmt.Errorf("executor: stopped after %d of %d orders: %w", i, len(orders), err)
			}
		}
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("executor: stopped after %d of %d orders: %w", i, len(orders), err)
		}

		rec := e.process(ctx, order)
		e.record(context.WithoutCancel(ctx), rec)
		records = append(records, rec)
	}
	return records, nil
}

// process runs one order through the checks and, unless in dry-run mode,
// submits it.
func (e *Executor) process(ctx context.Context, order domain.TradeOrder) domain.TradeRecord {
	key := dedupKey(order)
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = e.now()
	}
	rec := domain.TradeRecord{Order: order}
	log := e.logger.With(
		slog.String("order_id", order.ID),
		slog.String("source", string(order.Source)),
		slog.String("from", order.FromSymbol),
		slog.String("to", order.ToSymbol),
		slog.String("chain", order.Chain),
	)

	// 1. Deduplication.
	if e.dedup.IsDuplicate(key) {
		log.WarnContext(ctx, "duplicate order, skipping")
		return e.finish(rec, domain.TradeStatusRejected, domain.ErrDuplicateTrade.Error())
	}

	req := domain.TradeRequest{
		FromToken: order.FromAddress,
		ToToken:   order.ToAddress,
		Amount:    order.Quantity,
		Reason:    order.Reason,
		Chain:     order.Chain,
	}

	// 2. Pre-trade risk check.
	if e.risk != nil {
		var quote *domain.Quote
		if e.quoter != nil {
			q, err := e.quoter.Quote(ctx, req)
			if err != nil {
				log.WarnContext(ctx, "quote unavailable", slog.String("error", err.Error()))
			} else {
				quote = &q
			}
		}
		if err := e.risk.CheckTrade(ctx, order, quote); err != nil {
			log.WarnContext(ctx, "risk check failed, skipping", slog.String("error", err.Error()))
			return e.finish(rec, domain.TradeStatusRejected, err.Error())
		}
	}

	// 3. Dry run stops here.
	if e.dryRun {
		log.InfoContext(ctx, "dry run: trade not submitted",
			slog.Float64("quantity", order.Quantity),
			slog.Float64("usd_amount", order.USDAmount),
		)
		return e.finish(rec, domain.TradeStatusDryRun, "")
	}

	// 4. Shared rate limit.
	if err := e.waitRateLimit(ctx); err != nil {
		log.WarnContext(ctx, "rate limit wait failed", slog.String("error", err.Error()))
		return e.finish(rec, domain.TradeStatusFailed, err.Error())
	}

	// 5. Submit.
	result, err := e.submitter.ExecuteTrade(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "trade submission failed",
			slog.Float64("quantity", order.Quantity),
			slog.String("error", err.Error()),
		)
		return e.finish(rec, domain.TradeStatusFailed, err.Error())
	}
	if !result.Success {
		log.WarnContext(ctx, "trade rejected by api", slog.String("message", result.Error))
		return e.finish(rec, domain.TradeStatusFailed, result.Error)
	}

	rec.TxID = result.TxID
	log.InfoContext(ctx, "trade executed",
		slog.String("tx_id", result.TxID),
		slog.Float64("from_amount", result.FromAmount),
		slog.Float64("to_amount", result.ToAmount),
		slog.Float64("usd_amount", order.USDAmount),
	)
	return e.finish(rec, domain.TradeStatusExecuted, "")
}

// dedupKey identifies an order for deduplication. Callers that set an id
// get id-based dedup; otherwise the order is fingerprinted by source, pair,
// chain and USD amount to the cent.
func dedupKey(order domain.TradeOrder) string {
	if order.ID != "" {
		return "id:" + order.ID
	}
	return fmt.Sprintf("fp:%s|%s|%s|%s|%.2f",
		order.Source, order.FromAddress, order.ToAddress, order.Chain, order.USDAmount)
}

func (e *Executor) finish(rec domain.TradeRecord, status domain.TradeStatus, msg string) domain.TradeRecord {
	rec.Status = status
	rec.Error = msg
	rec.ExecutedAt = e.now()
	return rec
}

func (e *Executor) waitRateLimit(ctx context.Context) error {
	if e.rateLimit == nil {
		return nil
	}
	rl := e.rateLimit
	for {
		allowed, err := rl.Limiter.Allow(ctx, rl.Key, rl.Limit, rl.Window)
		if err != nil {
			return fmt.Errorf("executor: rate limit: %w", err)
		}
		if allowed {
			return nil
		}
		if err := e.sleep(ctx, rateLimitPoll); err != nil {
			return fmt.Errorf("executor: rate limit: %w", err)
		}
	}
}

// record persists and publishes a trade outcome. Failures are logged only.
func (e *Executor) record(ctx context.Context, rec domain.TradeRecord) {
	if e.trades != nil {
		if err := e.trades.Insert(ctx, rec); err != nil {
			e.logger.WarnContext(ctx, "trade record insert failed",
				slog.String("order_id", rec.Order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.audit != nil {
		detail := map[string]any{
			"order_id":   rec.Order.ID,
			"source":     rec.Order.Source,
			"from":       rec.Order.FromSymbol,
			"to":         rec.Order.ToSymbol,
			"chain":      rec.Order.Chain,
			"usd_amount": rec.Order.USDAmount,
			"tx_id":      rec.TxID,
			"error":      rec.Error,
		}
		if err := e.audit.Log(ctx, "trade_"+string(rec.Status), detail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if e.bus != nil {
		payload, err := json.Marshal(rec)
		if err != nil {
			return
		}
		if err := e.bus.Publish(ctx, domain.ChannelTrades, payload); err != nil {
			e.logger.WarnContext(ctx, "publish trade event failed", slog.String("error", err.Error()))
		}
		if err := e.bus.StreamAppend(ctx, domain.StreamTrades, payload); err != nil {
			e.logger.WarnContext(ctx, "append trade stream failed", slog.String("error", err.Error()))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
