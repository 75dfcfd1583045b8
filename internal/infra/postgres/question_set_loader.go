package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"history-ranking-service/internal/domain"
)

// QuestionSetLoader loads a card and its quiz rows from Postgres.
type QuestionSetLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionSetLoader(pool *pgxpool.Pool) *QuestionSetLoader {
	return &QuestionSetLoader{pool: pool}
}

func (l *QuestionSetLoader) LoadQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error) {
	set := domain.QuestionSet{CardID: cardID, Questions: []domain.Question{}}
	err := l.pool.QueryRow(ctx, `SELECT title FROM cards WHERE id=$1`, string(cardID)).Scan(&set.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrCardNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load card: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, content, COALESCE(options, '{}'), correct_answer, score
		 FROM quiz WHERE card_id=$1
		 ORDER BY created_at, id`,
		string(cardID),
	)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			q  domain.Question
		)
		if err := rows.Scan(&id, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.Score); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("scan question: %w", err)
		}
		q.ID = domain.QuestionID(id)
		q.Kind = domain.KindShortAnswer
		if len(q.Options) > 0 {
			q.Kind = domain.KindMultipleChoice
		}
		set.Questions = append(set.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	return set, nil
}
