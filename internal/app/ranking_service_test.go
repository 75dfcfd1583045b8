package app_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/domain"
	"history-ranking-service/internal/infra/memory"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestCompletedParticipantRanked(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("A", 5, 4, base))
	attempts.AppendAttempts(ctx, pass("B", 3, 3, base.Add(time.Minute)))
	service := newTestService(attempts, memory.NewDirectory(map[domain.AccountID]domain.DisplayHandle{"A": "alice"}))

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.TotalQuestions != 5 {
		t.Fatalf("expected 5 questions, got %d", result.TotalQuestions)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected only the completer, got %+v", result.Entries)
	}
	entry := result.Entries[0]
	if entry.UserID != "A" || entry.Percentage != 80 || entry.Rank != 1 || entry.DisplayName != "alice" || entry.CorrectCount != 4 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if result.ViewerStats != nil {
		t.Fatalf("expected no viewer stats for anonymous caller, got %+v", result.ViewerStats)
	}
}

func TestTieBrokenByEarliestAttempt(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("B", 5, 4, base.Add(time.Hour)))
	attempts.AppendAttempts(ctx, pass("A", 5, 4, base))
	attempts.AppendAttempts(ctx, pass("C", 5, 5, base.Add(2*time.Hour)))
	service := newTestService(attempts, memory.NewDirectory(nil))

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	got := userOrder(result.Entries)
	if want := []domain.AccountID{"C", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	for i, e := range result.Entries {
		if e.Rank != i+1 {
			t.Fatalf("expected dense rank %d, got %d", i+1, e.Rank)
		}
	}
}

func TestEqualTimestampsFallBackToAccountID(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("zed", 5, 3, base))
	attempts.AppendAttempts(ctx, pass("amy", 5, 3, base))
	service := newTestService(attempts, memory.NewDirectory(nil))

	first, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := userOrder(first.Entries); !reflect.DeepEqual(got, []domain.AccountID{"amy", "zed"}) {
		t.Fatalf("expected account id order, got %v", got)
	}

	second, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestRankingOrderInvariant(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	for i := 0; i < 12; i++ {
		user := domain.AccountID(fmt.Sprintf("user-%02d", i))
		attempts.AppendAttempts(ctx, pass(user, 5, i%6, base.Add(time.Duration(12-i)*time.Minute)))
	}
	service := newTestService(attempts, memory.NewDirectory(nil))

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(result.Entries) != 12 {
		t.Fatalf("expected 12 entries, got %d", len(result.Entries))
	}
	for i := 1; i < len(result.Entries); i++ {
		prev, cur := result.Entries[i-1], result.Entries[i]
		if prev.Percentage < cur.Percentage {
			t.Fatalf("entries out of order at %d: %+v before %+v", i, prev, cur)
		}
		if cur.Rank != prev.Rank+1 {
			t.Fatalf("ranks not dense at %d: %d then %d", i, prev.Rank, cur.Rank)
		}
	}
}

func TestReplayExcludedByStrictCompletion(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("A", 5, 5, base))
	attempts.AppendAttempts(ctx, pass("A", 5, 2, base.Add(time.Hour)))
	service := newTestService(attempts, memory.NewDirectory(nil))
	viewer := domain.AccountID("A")

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5", Viewer: &viewer})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected replaying user to be excluded, got %+v", result.Entries)
	}
	if result.ViewerStats == nil || result.ViewerStats.PlayCount != 2 || result.ViewerStats.BestPercentage != 100 {
		t.Fatalf("unexpected viewer stats %+v", result.ViewerStats)
	}
}

func TestViewerStatsIgnorePartialPass(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("V", 5, 3, base))
	attempts.AppendAttempts(ctx, pass("V", 5, 4, base.Add(time.Hour)))
	attempts.AppendAttempts(ctx, pass("V", 3, 3, base.Add(2*time.Hour)))
	service := newTestService(attempts, memory.NewDirectory(nil))
	viewer := domain.AccountID("V")

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5", Viewer: &viewer})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 13 attempts over 5 questions: two full passes, best one 4/5.
	if result.ViewerStats.PlayCount != 2 {
		t.Fatalf("expected 2 plays, got %d", result.ViewerStats.PlayCount)
	}
	if result.ViewerStats.BestPercentage != 80 {
		t.Fatalf("expected best 80, got %d", result.ViewerStats.BestPercentage)
	}
}

func TestViewerMarked(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("A", 5, 5, base))
	attempts.AppendAttempts(ctx, pass("V", 5, 2, base))
	service := newTestService(attempts, memory.NewDirectory(nil))
	viewer := domain.AccountID("V")

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5", Viewer: &viewer})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.Entries[0].IsViewer || !result.Entries[1].IsViewer {
		t.Fatalf("expected only V marked, got %+v", result.Entries)
	}
	if result.ViewerStats.PlayCount != 1 || result.ViewerStats.BestPercentage != 40 {
		t.Fatalf("unexpected viewer stats %+v", result.ViewerStats)
	}
}

func TestViewerWithoutAttemptsGetsZeroStats(t *testing.T) {
	service := newTestService(memory.NewAttemptStore(), memory.NewDirectory(nil))
	viewer := domain.AccountID("nobody")

	result, err := service.ComputeRanking(context.Background(), app.RankingQuery{CardID: "card-5", Viewer: &viewer})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.ViewerStats == nil || *result.ViewerStats != (domain.ViewerStats{}) {
		t.Fatalf("expected zeroed stats, got %+v", result.ViewerStats)
	}
}

func TestFallbackDisplayName(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("u123", 5, 1, base))
	attempts.AppendAttempts(ctx, pass("0f5c2a9e-7d1b-4c3a", 5, 1, base.Add(time.Second)))
	service := newTestService(attempts, memory.NewDirectory(nil))

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.Entries[0].DisplayName != "u123" {
		t.Fatalf("expected fallback u123, got %q", result.Entries[0].DisplayName)
	}
	if result.Entries[1].DisplayName != "0f5c2a9e..." {
		t.Fatalf("expected truncated fallback, got %q", result.Entries[1].DisplayName)
	}
}

func TestResolverFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("u123", 5, 5, base))
	service := newTestService(attempts, failingResolver{})

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("expected resolver failure to be absorbed, got %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].DisplayName != "u123" {
		t.Fatalf("unexpected entries %+v", result.Entries)
	}
}

func TestAttemptFetchFailureIsDependencyError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	service := newTestService(failingAttempts{err: cause}, memory.NewDirectory(nil))

	result, err := service.ComputeRanking(context.Background(), app.RankingQuery{CardID: "card-5"})
	var dep *domain.DependencyError
	if !errors.As(err, &dep) {
		t.Fatalf("expected dependency error, got %v (result %+v)", err, result)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected original cause preserved, got %v", err)
	}
}

func TestEmptyAndMissingCards(t *testing.T) {
	service := newTestService(memory.NewAttemptStore(), memory.NewDirectory(nil))
	viewer := domain.AccountID("V")

	result, err := service.ComputeRanking(context.Background(), app.RankingQuery{CardID: "card-empty", Viewer: &viewer})
	if err != nil {
		t.Fatalf("compute empty: %v", err)
	}
	if result.TotalQuestions != 0 || result.Entries == nil || len(result.Entries) != 0 || result.ViewerStats != nil {
		t.Fatalf("unexpected empty result %+v", result)
	}

	result, err = service.ComputeRanking(context.Background(), app.RankingQuery{CardID: "card-5"})
	if err != nil || len(result.Entries) != 0 {
		t.Fatalf("expected empty ranking without attempts, got %+v, %v", result, err)
	}

	_, err = service.ComputeRanking(context.Background(), app.RankingQuery{CardID: "card-missing"})
	if !errors.Is(err, domain.ErrCardNotFound) {
		t.Fatalf("expected card not found, got %v", err)
	}
}

func TestWindowFiltersOldAttempts(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	attempts.AppendAttempts(ctx, pass("old", 5, 5, now.Add(-30*24*time.Hour)))
	attempts.AppendAttempts(ctx, pass("week", 5, 4, now.Add(-3*24*time.Hour)))
	attempts.AppendAttempts(ctx, pass("today", 5, 3, now.Add(-2*time.Hour)))
	service := newTestService(attempts, memory.NewDirectory(nil))
	service.SetClock(func() time.Time { return now })

	cases := []struct {
		window domain.RankingWindow
		want   []domain.AccountID
	}{
		{domain.WindowAll, []domain.AccountID{"old", "week", "today"}},
		{domain.WindowWeek, []domain.AccountID{"week", "today"}},
		{domain.WindowToday, []domain.AccountID{"today"}},
	}
	for _, tc := range cases {
		result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5", Window: tc.window})
		if err != nil {
			t.Fatalf("%s: compute: %v", tc.window, err)
		}
		if got := userOrder(result.Entries); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.window, tc.want, got)
		}
	}
}

func TestLimitKeepsViewerRow(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	attempts.AppendAttempts(ctx, pass("A", 5, 5, base))
	attempts.AppendAttempts(ctx, pass("B", 5, 4, base))
	attempts.AppendAttempts(ctx, pass("C", 5, 3, base))
	attempts.AppendAttempts(ctx, pass("V", 5, 1, base))
	service := newTestService(attempts, memory.NewDirectory(nil))
	viewer := domain.AccountID("V")

	result, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5", Viewer: &viewer, Limit: 2})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.TotalParticipants != 4 {
		t.Fatalf("expected 4 participants, got %d", result.TotalParticipants)
	}
	if got := userOrder(result.Entries); !reflect.DeepEqual(got, []domain.AccountID{"A", "B", "V"}) {
		t.Fatalf("expected top two plus viewer, got %v", got)
	}
	if result.Entries[2].Rank != 4 {
		t.Fatalf("expected viewer to keep rank 4, got %d", result.Entries[2].Rank)
	}
}

func TestRecordAttemptsGradesAndNotifies(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	service := newTestService(attempts, memory.NewDirectory(nil))
	service.SetClock(func() time.Time { return base })

	updates, cancel, err := service.Subscribe(ctx, "card-2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	viewer := domain.AccountID("V")
	res, err := service.RecordAttempts(ctx, &viewer, "card-2", []domain.AnswerSubmission{
		{QuestionID: "q1", Answer: "2"},
		{QuestionID: "q2", Answer: "  hanyang "},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.CorrectCount != 2 || res.Percentage != 100 || len(res.Results) != 2 {
		t.Fatalf("unexpected pass result %+v", res)
	}
	if attempts.Len() != 2 {
		t.Fatalf("expected 2 stored attempts, got %d", attempts.Len())
	}

	select {
	case update := <-updates:
		if update.CardID != "card-2" || !update.At.Equal(base) {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected ranking update")
	}

	ranking, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-2", Viewer: &viewer})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(ranking.Entries) != 1 || !ranking.Entries[0].IsViewer || ranking.Entries[0].Percentage != 100 {
		t.Fatalf("unexpected ranking %+v", ranking.Entries)
	}
}

func TestRecordAttemptsValidation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(memory.NewAttemptStore(), memory.NewDirectory(nil))
	viewer := domain.AccountID("V")

	if _, err := service.RecordAttempts(ctx, nil, "card-2", []domain.AnswerSubmission{{QuestionID: "q1", Answer: "2"}}); !errors.Is(err, domain.ErrViewerRequired) {
		t.Fatalf("expected viewer required, got %v", err)
	}
	if _, err := service.RecordAttempts(ctx, &viewer, "card-2", nil); !errors.Is(err, domain.ErrEmptySubmission) {
		t.Fatalf("expected empty submission, got %v", err)
	}
	if _, err := service.RecordAttempts(ctx, &viewer, "card-2", []domain.AnswerSubmission{{QuestionID: "q9", Answer: "x"}}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := service.RecordAttempts(ctx, &viewer, "card-missing", []domain.AnswerSubmission{{QuestionID: "q1", Answer: "x"}}); !errors.Is(err, domain.ErrCardNotFound) {
		t.Fatalf("expected card not found, got %v", err)
	}
}

func TestRecordAttemptsRejectsRepeatedQuestion(t *testing.T) {
	ctx := context.Background()
	attempts := memory.NewAttemptStore()
	service := newTestService(attempts, memory.NewDirectory(nil))
	viewer := domain.AccountID("repeat-player")

	answers := make([]domain.AnswerSubmission, 0, 5)
	for i := 0; i < 5; i++ {
		answers = append(answers, domain.AnswerSubmission{QuestionID: "c5-q1", Answer: "yes"})
	}
	if _, err := service.RecordAttempts(ctx, &viewer, "card-5", answers); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer error, got %v", err)
	}
	if attempts.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d attempts", attempts.Len())
	}

	ranking, err := service.ComputeRanking(ctx, app.RankingQuery{CardID: "card-5"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(ranking.Entries) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", ranking.Entries)
	}
}

func TestRecordAttemptsAppendFailure(t *testing.T) {
	service := newTestService(failingAttempts{err: errors.New("disk full")}, memory.NewDirectory(nil))
	viewer := domain.AccountID("V")

	_, err := service.RecordAttempts(context.Background(), &viewer, "card-2", []domain.AnswerSubmission{{QuestionID: "q1", Answer: "2"}})
	var dep *domain.DependencyError
	if !errors.As(err, &dep) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func newTestService(attempts app.AttemptStore, identities app.IdentityResolver) *app.RankingService {
	questions := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(testSets()), 5*time.Minute)
	return app.NewRankingService(questions, attempts, identities, memory.NewFeedStore(), nil)
}

func testSets() map[domain.CardID]domain.QuestionSet {
	five := domain.QuestionSet{CardID: "card-5", Title: "Five questions"}
	for i := 1; i <= 5; i++ {
		five.Questions = append(five.Questions, domain.Question{
			ID:            domain.QuestionID(fmt.Sprintf("c5-q%d", i)),
			Kind:          domain.KindShortAnswer,
			CorrectAnswer: "yes",
			Score:         10,
		})
	}
	return map[domain.CardID]domain.QuestionSet{
		"card-5":     five,
		"card-empty": {CardID: "card-empty"},
		"card-2": {
			CardID: "card-2",
			Questions: []domain.Question{
				{ID: "q1", Kind: domain.KindMultipleChoice, Options: []string{"1", "2", "3", "4"}, CorrectAnswer: "2"},
				{ID: "q2", Kind: domain.KindShortAnswer, CorrectAnswer: "Hanyang"},
			},
		},
	}
}

// pass answers the first n questions of card-5, the first correct of them right.
func pass(user domain.AccountID, n, correct int, at time.Time) []domain.AttemptRecord {
	records := make([]domain.AttemptRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, domain.AttemptRecord{
			ID:         fmt.Sprintf("%s-%d-%d", user, at.Unix(), i),
			UserID:     user,
			QuestionID: domain.QuestionID(fmt.Sprintf("c5-q%d", i+1)),
			Correct:    i < correct,
			CreatedAt:  at,
		})
	}
	return records
}

func userOrder(entries []domain.RankedEntry) []domain.AccountID {
	ids := make([]domain.AccountID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

type failingResolver struct{}

func (failingResolver) ResolveDisplayNames(context.Context, []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error) {
	return nil, errors.New("identity service unreachable")
}

type failingAttempts struct {
	err error
}

func (f failingAttempts) FetchAttempts(context.Context, []domain.QuestionID) ([]domain.AttemptRecord, error) {
	return nil, f.err
}

func (f failingAttempts) AppendAttempts(context.Context, []domain.AttemptRecord) error {
	return f.err
}
