package app

import (
	"sync"

	"history-ranking-service/internal/domain"
)

// FeedRepository abstracts where per-card feeds live (in-memory, Redis-aware, etc).
type FeedRepository interface {
	GetOrCreate(cardID domain.CardID) *Feed
	Get(cardID domain.CardID) (*Feed, bool)
	DeleteIfIdle(cardID domain.CardID)
}

// Feed fans out ranking change notifications for one card.
type Feed struct {
	mu          sync.Mutex
	subscribers map[chan domain.RankingUpdate]struct{}
}

// NewFeed is exported for infrastructure layers that hold feeds.
func NewFeed() *Feed {
	return &Feed{
		subscribers: make(map[chan domain.RankingUpdate]struct{}),
	}
}

// Publish delivers update to every subscriber without blocking.
// A subscriber that has not consumed its previous update gets the newer one instead.
func (f *Feed) Publish(update domain.RankingUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

// IsIdle reports whether nobody is subscribed.
func (f *Feed) IsIdle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers) == 0
}

func (f *Feed) subscribe() (<-chan domain.RankingUpdate, func()) {
	ch := make(chan domain.RankingUpdate, 1)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}
