package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/auth"
	"history-ranking-service/internal/domain"
	"history-ranking-service/internal/infra/memory"
)

const testSecret = "transport-secret"

func newFixture(t *testing.T, attempts app.AttemptStore) *httptest.Server {
	t.Helper()
	return newFixtureWithSecret(t, attempts, testSecret)
}

func newFixtureWithSecret(t *testing.T, attempts app.AttemptStore, secret string) *httptest.Server {
	t.Helper()
	questions := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(sampleSets()), time.Minute)
	directory := memory.NewDirectory(map[domain.AccountID]domain.DisplayHandle{
		"acc-alice": "alice",
		"acc-bob":   "bob",
	})
	service := app.NewRankingService(questions, attempts, directory, memory.NewFeedStore(), nil)
	router := NewRouter(service, auth.NewVerifier(secret, ""), nil, RouterOptions{})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func sampleSets() map[domain.CardID]domain.QuestionSet {
	return map[domain.CardID]domain.QuestionSet{
		"card-1": {
			CardID: "card-1",
			Title:  "Joseon",
			Questions: []domain.Question{
				{ID: "q1", Kind: domain.KindMultipleChoice, Prompt: "Founding year?", Options: []string{"1392", "1400"}, CorrectAnswer: "1392"},
				{ID: "q2", Kind: domain.KindShortAnswer, Prompt: "Capital?", CorrectAnswer: "Hanyang"},
			},
		},
	}
}

func tokenFor(t *testing.T, id domain.AccountID) string {
	t.Helper()
	claims := auth.Claims{
		UserID: string(id),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type brokenAttempts struct{}

func (brokenAttempts) FetchAttempts(context.Context, []domain.QuestionID) ([]domain.AttemptRecord, error) {
	return nil, errors.New("connection refused")
}

func (brokenAttempts) AppendAttempts(context.Context, []domain.AttemptRecord) error {
	return errors.New("connection refused")
}
