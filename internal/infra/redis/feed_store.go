package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/domain"
)

// FeedStore is a Redis-aware implementation of app.FeedRepository.
// Feeds and their subscribers stay in process; Redis only carries a liveness
// marker per watched card so other instances can tell which cards have viewers.
type FeedStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	feeds  map[domain.CardID]*app.Feed
}

func NewFeedStore(client *redis.Client, ttl time.Duration) *FeedStore {
	return &FeedStore{
		client: client,
		ttl:    ttl,
		feeds:  make(map[domain.CardID]*app.Feed),
	}
}

func (s *FeedStore) GetOrCreate(cardID domain.CardID) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[cardID]; ok {
		return feed
	}
	feed := app.NewFeed()
	s.feeds[cardID] = feed
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(cardID), "1", s.ttl).Err()
	return feed
}

func (s *FeedStore) Get(cardID domain.CardID) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[cardID]
	return feed, ok
}

func (s *FeedStore) DeleteIfIdle(cardID domain.CardID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[cardID]
	if !ok {
		return
	}
	if feed.IsIdle() {
		delete(s.feeds, cardID)
		_ = s.client.Del(context.Background(), s.key(cardID)).Err()
	}
}

func (s *FeedStore) key(cardID domain.CardID) string {
	return "ranking:feed:" + string(cardID)
}
