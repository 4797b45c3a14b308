package ws

import (
	"context"
	"strconv"
	"sync"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

var _ domain.SignalBus = (*LocalBus)(nil)

// LocalBus is an in-process SignalBus used when Redis is not configured.
// Publish never blocks: subscribers that fall behind lose messages.
type LocalBus struct {
	maxLen int

	mu      sync.Mutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]domain.StreamMessage
	seq     map[string]int64
}

// NewLocalBus creates a LocalBus keeping at most maxLen entries per stream.
func NewLocalBus(maxLen int) *LocalBus {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &LocalBus{
		maxLen:  maxLen,
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]int64),
	}
}

// Publish delivers payload to every current subscriber of channel.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives messages until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// StreamAppend appends payload to stream, dropping the oldest entries past
// maxLen.
func (b *LocalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[stream]++
	entries := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq[stream], 10),
		Payload: payload,
	})
	if over := len(entries) - b.maxLen; over > 0 {
		entries = append([]domain.StreamMessage(nil), entries[over:]...)
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries after lastID. An empty lastID or
// "0" reads from the start.
func (b *LocalBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	after, _ := strconv.ParseInt(lastID, 10, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseInt(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}
