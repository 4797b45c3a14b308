package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []domain.TradeRequest
	fail  map[string]error // keyed by FromToken
}

func (f *fakeSubmitter) ExecuteTrade(_ context.Context, req domain.TradeRequest) (domain.TradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := f.fail[req.FromToken]; err != nil {
		return domain.TradeResult{}, err
	}
	return domain.TradeResult{Success: true, TxID: "tx-" + req.FromToken, FromAmount: req.Amount}, nil
}

type fakeStore struct {
	mu   sync.Mutex
	recs []domain.TradeRecord
}

func (f *fakeStore) Insert(_ context.Context, rec domain.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeStore) ListRecent(context.Context, domain.ListOpts) ([]domain.TradeRecord, error) {
	return f.recs, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeBus struct {
	published map[string]int
	streamed  map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string]int{}, streamed: map[string]int{}}
}

func (f *fakeBus) Publish(_ context.Context, ch string, _ []byte) error {
	f.published[ch]++
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (f *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.streamed[stream]++
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type rejectRisk struct {
	reject map[string]bool // keyed by order id
	quotes []*domain.Quote
}

func (r *rejectRisk) CheckTrade(_ context.Context, o domain.TradeOrder, q *domain.Quote) error {
	r.quotes = append(r.quotes, q)
	if r.reject[o.ID] {
		return domain.ErrSlippageExceeded
	}
	return nil
}

type fakeQuoter struct{ err error }

func (f fakeQuoter) Quote(_ context.Context, req domain.TradeRequest) (domain.Quote, error) {
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{FromToken: req.FromToken, ToToken: req.ToToken, FromAmount: req.Amount}, nil
}

func order(id, from string) domain.TradeOrder {
	return domain.TradeOrder{
		ID:          id,
		FromSymbol:  from,
		ToSymbol:    "USDC",
		FromAddress: from + "-addr",
		ToAddress:   "usdc-addr",
		Chain:       "ethereum",
		Quantity:    1.5,
		USDAmount:   150,
		Source:      domain.TradeSourceRebalance,
	}
}

func newTestExecutor(sub TradeSubmitter) (*Executor, *[]time.Duration) {
	e := NewExecutor(sub, testLogger())
	var pauses []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	return e, &pauses
}

func TestExecuteSequentialWithPause(t *testing.T) {
	sub := &fakeSubmitter{}
	e, pauses := newTestExecutor(sub)

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "WETH"), order("2", "UNI"), order("3", "PEPE")}, time.Second)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, domain.TradeStatusExecuted, r.Status)
	}
	assert.Equal(t, "tx-WETH-addr", recs[0].TxID)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *pauses)

	require.Len(t, sub.calls, 3)
	assert.Equal(t, domain.TradeRequest{
		FromToken: "WETH-addr",
		ToToken:   "usdc-addr",
		Amount:    1.5,
		Chain:     "ethereum",
	}, sub.calls[0])
}

func TestExecuteContinuesAfterFailure(t *testing.T) {
	sub := &fakeSubmitter{fail: map[string]error{"UNI-addr": errors.New("boom")}}
	e, _ := newTestExecutor(sub)

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "UNI"), order("2", "WETH")}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.TradeStatusFailed, recs[0].Status)
	assert.Equal(t, "boom", recs[0].Error)
	assert.Equal(t, domain.TradeStatusExecuted, recs[1].Status)
	assert.Len(t, sub.calls, 2)
}

func TestExecuteDryRunNeverSubmits(t *testing.T) {
	sub := &fakeSubmitter{}
	e, _ := newTestExecutor(sub)
	e.SetDryRun(true)

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "WETH")}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TradeStatusDryRun, recs[0].Status)
	assert.Empty(t, sub.calls)
}

func TestExecuteDedup(t *testing.T) {
	sub := &fakeSubmitter{}
	e, _ := newTestExecutor(sub)

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("same", "WETH"), order("same", "WETH")}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.TradeStatusExecuted, recs[0].Status)
	assert.Equal(t, domain.TradeStatusRejected, recs[1].Status)
	assert.Equal(t, domain.ErrDuplicateTrade.Error(), recs[1].Error)
	assert.Len(t, sub.calls, 1)
}

func TestExecuteDedupWithoutIDs(t *testing.T) {
	sub := &fakeSubmitter{}
	e, _ := newTestExecutor(sub)

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("", "WETH")}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusExecuted, recs[0].Status)

	recs, err = e.Execute(context.Background(), []domain.TradeOrder{order("", "WETH")}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusRejected, recs[0].Status)
	assert.Equal(t, domain.ErrDuplicateTrade.Error(), recs[0].Error)
	assert.Len(t, sub.calls, 1, "identical order within the ttl is submitted once")

	other := order("", "WETH")
	other.USDAmount = 151
	recs, err = e.Execute(context.Background(), []domain.TradeOrder{other}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusExecuted, recs[0].Status)
	assert.Len(t, sub.calls, 2)
}

func TestExecuteAssignsMissingIDs(t *testing.T) {
	e, _ := newTestExecutor(&fakeSubmitter{})
	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("", "WETH"), order("", "UNI")}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotEmpty(t, recs[0].Order.ID)
	assert.NotEqual(t, recs[0].Order.ID, recs[1].Order.ID)
	assert.Equal(t, domain.TradeStatusExecuted, recs[1].Status)
}

func TestExecuteRiskRejection(t *testing.T) {
	sub := &fakeSubmitter{}
	e, _ := newTestExecutor(sub)
	risk := &rejectRisk{reject: map[string]bool{"1": true}}
	e.SetRiskChecker(risk, fakeQuoter{})

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "WETH"), order("2", "UNI")}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusRejected, recs[0].Status)
	assert.Equal(t, domain.TradeStatusExecuted, recs[1].Status)
	require.Len(t, risk.quotes, 2)
	require.NotNil(t, risk.quotes[0])
	assert.Equal(t, "WETH-addr", risk.quotes[0].FromToken)
	assert.Len(t, sub.calls, 1)
}

func TestExecuteRiskCheckWithoutQuote(t *testing.T) {
	e, _ := newTestExecutor(&fakeSubmitter{})
	risk := &rejectRisk{}
	e.SetRiskChecker(risk, fakeQuoter{err: errors.New("no route")})

	_, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "WETH")}, 0)
	require.NoError(t, err)
	require.Len(t, risk.quotes, 1)
	assert.Nil(t, risk.quotes[0])
}

func TestExecuteStopsOnCancel(t *testing.T) {
	sub := &fakeSubmitter{}
	e := NewExecutor(sub, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	recs, err := e.Execute(ctx, []domain.TradeOrder{order("1", "WETH"), order("2", "UNI")}, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, recs, 1)
	assert.Len(t, sub.calls, 1)
}

func TestExecuteRecordsOutcomes(t *testing.T) {
	sub := &fakeSubmitter{fail: map[string]error{"UNI-addr": errors.New("boom")}}
	e, _ := newTestExecutor(sub)
	store := &fakeStore{}
	audit := &fakeAudit{}
	bus := newFakeBus()
	e.SetRecording(store, audit, bus)

	_, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "WETH"), order("2", "UNI")}, 0)
	require.NoError(t, err)
	assert.Len(t, store.recs, 2)
	assert.Equal(t, []string{"trade_executed", "trade_failed"}, audit.events)
	assert.Equal(t, 2, bus.published[domain.ChannelTrades])
	assert.Equal(t, 2, bus.streamed[domain.StreamTrades])
}

type countingLimiter struct {
	denials int
	calls   int
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.calls > l.denials, nil
}

func (l *countingLimiter) Wait(context.Context, string) error { return nil }

func TestExecuteWaitsForRateLimit(t *testing.T) {
	sub := &fakeSubmitter{}
	e, pauses := newTestExecutor(sub)
	lim := &countingLimiter{denials: 2}
	e.SetRateLimit(RateLimit{Limiter: lim, Key: "trades", Limit: 30, Window: time.Minute})

	recs, err := e.Execute(context.Background(), []domain.TradeOrder{order("1", "WETH")}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusExecuted, recs[0].Status)
	assert.Equal(t, 3, lim.calls)
	assert.Equal(t, []time.Duration{rateLimitPoll, rateLimitPoll}, *pauses)
}

func TestDedupExpiry(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.IsDuplicate("a"))
}
