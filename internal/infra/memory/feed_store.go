package memory

import (
	"sync"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/domain"
)

// FeedStore is an in-memory implementation of app.FeedRepository.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[domain.CardID]*app.Feed
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds: make(map[domain.CardID]*app.Feed),
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
	}
}
