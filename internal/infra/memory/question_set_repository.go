package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"history-ranking-service/internal/domain"
)

// QuestionSetLoader fetches a card's question set from a backing store.
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error)
}

// QuestionSetRepository caches question sets with TTL to avoid repeated DB hits.
type QuestionSetRepository struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[domain.CardID]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionSetRepository(loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.CardID]cachedSet),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error) {
	if set, ok := r.cached(cardID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(string(cardID), func() (interface{}, error) {
		if set, ok := r.cached(cardID); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, cardID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		r.mu.Lock()
		r.cache[cardID] = cachedSet{
			set:       set,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate drops a cached set, e.g. after its questions were regenerated.
func (r *QuestionSetRepository) Invalidate(cardID domain.CardID) {
	r.mu.Lock()
	delete(r.cache, cardID)
	r.mu.Unlock()
}

func (r *QuestionSetRepository) cached(cardID domain.CardID) (domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[cardID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionSetLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionSetLoader struct {
	sets map[domain.CardID]domain.QuestionSet
}

func NewStaticQuestionSetLoader(sets map[domain.CardID]domain.QuestionSet) *StaticQuestionSetLoader {
	return &StaticQuestionSetLoader{sets: sets}
}

func (l *StaticQuestionSetLoader) LoadQuestionSet(_ context.Context, cardID domain.CardID) (domain.QuestionSet, error) {
	if set, ok := l.sets[cardID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrCardNotFound
}
