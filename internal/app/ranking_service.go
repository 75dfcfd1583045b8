package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"history-ranking-service/internal/domain"
)

// QuestionSetRepository loads a card's question set (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error)
}

// AttemptStore is the append-only attempt log.
type AttemptStore interface {
	FetchAttempts(ctx context.Context, questionIDs []domain.QuestionID) ([]domain.AttemptRecord, error)
	AppendAttempts(ctx context.Context, records []domain.AttemptRecord) error
}

// IdentityResolver maps account ids to display handles in one batch.
// Unknown ids are absent from the result.
type IdentityResolver interface {
	ResolveDisplayNames(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error)
}

// RankingQuery selects a card's leaderboard. Viewer is nil for anonymous callers.
type RankingQuery struct {
	CardID domain.CardID
	Viewer *domain.AccountID
	Window domain.RankingWindow
	Limit  int
}

// RankingService contains the ranking use cases.
type RankingService struct {
	questions  QuestionSetRepository
	attempts   AttemptStore
	identities IdentityResolver
	feeds      FeedRepository
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewRankingService(questions QuestionSetRepository, attempts AttemptStore, identities IdentityResolver, feeds FeedRepository, logger *zap.Logger) *RankingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingService{
		questions:  questions,
		attempts:   attempts,
		identities: identities,
		feeds:      feeds,
		log:        logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetClock replaces the time source; used by tests for deterministic timestamps.
func (s *RankingService) SetClock(now func() time.Time) {
	s.now = now
}

// ComputeRanking builds the leaderboard of a card from its raw attempt log.
// Only users with exactly one attempt per question are ranked.
func (s *RankingService) ComputeRanking(ctx context.Context, q RankingQuery) (domain.RankingResult, error) {
	set, err := s.questionSet(ctx, q.CardID)
	if err != nil {
		return domain.RankingResult{}, err
	}
	total := set.TotalCount()
	if total == 0 {
		return domain.RankingResult{CardID: q.CardID, Entries: []domain.RankedEntry{}}, nil
	}

	attempts, err := s.attempts.FetchAttempts(ctx, set.QuestionIDs())
	if err != nil {
		return domain.RankingResult{}, domain.Dependency("fetch attempts", err)
	}
	attempts = memberAttempts(attempts, set)
	if since, ok := q.Window.Since(s.now()); ok {
		attempts = attemptsSince(attempts, since)
	}

	summaries := completedParticipants(summarize(attempts), total)
	s.resolveDisplayNames(ctx, summaries)
	entries := rankParticipants(summaries, total, q.Viewer)

	result := domain.RankingResult{
		CardID:            q.CardID,
		TotalQuestions:    total,
		TotalParticipants: len(entries),
		Entries:           limitEntries(entries, q.Limit),
	}
	if q.Viewer != nil {
		result.ViewerStats = viewerStats(attempts, *q.Viewer, total)
	}
	return result, nil
}

// RecordAttempts grades answers against the card and appends one attempt per answer.
// Each question may appear at most once per batch; nothing is stored if validation fails.
func (s *RankingService) RecordAttempts(ctx context.Context, viewer *domain.AccountID, cardID domain.CardID, answers []domain.AnswerSubmission) (domain.PassResult, error) {
	if viewer == nil || *viewer == "" {
		return domain.PassResult{}, domain.ErrViewerRequired
	}
	if len(answers) == 0 {
		return domain.PassResult{}, domain.ErrEmptySubmission
	}
	set, err := s.questionSet(ctx, cardID)
	if err != nil {
		return domain.PassResult{}, err
	}

	now := s.now()
	records := make([]domain.AttemptRecord, 0, len(answers))
	results := make([]domain.AnswerResult, 0, len(answers))
	seen := make(map[domain.QuestionID]struct{}, len(answers))
	correct := 0
	for _, answer := range answers {
		question, ok := set.Question(answer.QuestionID)
		if !ok {
			return domain.PassResult{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, answer.QuestionID)
		}
		if _, dup := seen[question.ID]; dup {
			return domain.PassResult{}, fmt.Errorf("%w: %s", domain.ErrDuplicateAnswer, question.ID)
		}
		seen[question.ID] = struct{}{}
		isCorrect := question.Grade(answer.Answer)
		if isCorrect {
			correct++
		}
		records = append(records, domain.AttemptRecord{
			ID:         s.newID(),
			UserID:     *viewer,
			QuestionID: question.ID,
			CardID:     cardID,
			Correct:    isCorrect,
			CreatedAt:  now,
		})
		results = append(results, domain.AnswerResult{QuestionID: question.ID, Correct: isCorrect})
	}

	if err := s.attempts.AppendAttempts(ctx, records); err != nil {
		return domain.PassResult{}, domain.Dependency("append attempts", err)
	}
	s.publish(domain.RankingUpdate{CardID: cardID, At: now})

	return domain.PassResult{
		CardID:         cardID,
		Results:        results,
		CorrectCount:   correct,
		TotalQuestions: set.TotalCount(),
		Percentage:     percentage(correct, set.TotalCount()),
	}, nil
}

// Subscribe returns a channel notified whenever attempts are recorded for the card.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RankingService) Subscribe(ctx context.Context, cardID domain.CardID) (<-chan domain.RankingUpdate, func(), error) {
	if _, err := s.questionSet(ctx, cardID); err != nil {
		return nil, nil, err
	}
	feed := s.feeds.GetOrCreate(cardID)
	ch, unsubscribe := feed.subscribe()
	cancel := func() {
		unsubscribe()
		s.feeds.DeleteIfIdle(cardID)
	}
	return ch, cancel, nil
}

func (s *RankingService) publish(update domain.RankingUpdate) {
	if s.feeds == nil {
		return
	}
	if feed, ok := s.feeds.Get(update.CardID); ok {
		feed.Publish(update)
	}
}

func (s *RankingService) questionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error) {
	set, err := s.questions.GetQuestionSet(ctx, cardID)
	if err != nil {
		if errors.Is(err, domain.ErrCardNotFound) {
			return domain.QuestionSet{}, domain.ErrCardNotFound
		}
		return domain.QuestionSet{}, domain.Dependency("load question set", err)
	}
	return set, nil
}

// resolveDisplayNames fills DisplayName in place. Lookup failures fall back to truncated ids.
func (s *RankingService) resolveDisplayNames(ctx context.Context, summaries []domain.ParticipantSummary) {
	if len(summaries) == 0 {
		return
	}
	ids := make([]domain.AccountID, 0, len(summaries))
	for _, summary := range summaries {
		ids = append(ids, summary.UserID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	names, err := s.identities.ResolveDisplayNames(ctx, ids)
	if err != nil {
		s.log.Warn("display name lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		names = nil
	}
	for i := range summaries {
		if handle, ok := names[summaries[i].UserID]; ok && handle != "" {
			summaries[i].DisplayName = handle
			continue
		}
		summaries[i].DisplayName = domain.FallbackHandle(summaries[i].UserID)
	}
}
