package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"history-ranking-service/internal/domain"
)

// QuestionSetLoader fetches a card's question set from a backing store.
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error)
}

// QuestionSetRepository caches question sets in Redis and falls back to a loader on cache miss.
// Sets are stored as JSON: SET card:{cardID}:questions {json} EX ttl
type QuestionSetRepository struct {
	client *redis.Client
	loader QuestionSetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionSetRepository(client *redis.Client, loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error) {
	if set, ok := r.cached(ctx, cardID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(string(cardID), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := r.cached(ctx, cardID); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, cardID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		if raw, err := json.Marshal(set); err == nil {
			// best-effort; a failed write only costs another load
			_ = r.client.Set(ctx, r.key(cardID), raw, r.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate removes the cached copy of a card's question set.
func (r *QuestionSetRepository) Invalidate(ctx context.Context, cardID domain.CardID) error {
	return r.client.Del(ctx, r.key(cardID)).Err()
}

func (r *QuestionSetRepository) cached(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, bool) {
	raw, err := r.client.Get(ctx, r.key(cardID)).Bytes()
	if err != nil {
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.QuestionSet{}, false
	}
	return set, true
}

func (r *QuestionSetRepository) key(cardID domain.CardID) string {
	return "card:" + string(cardID) + ":questions"
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
