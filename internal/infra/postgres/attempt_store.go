package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"history-ranking-service/internal/domain"
)

// AttemptStore reads and appends game_records rows.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) FetchAttempts(ctx context.Context, questionIDs []domain.QuestionID) ([]domain.AttemptRecord, error) {
	if len(questionIDs) == 0 {
		return []domain.AttemptRecord{}, nil
	}
	ids := make([]string, 0, len(questionIDs))
	for _, id := range questionIDs {
		ids = append(ids, string(id))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, quiz_id, COALESCE(card_id, ''), is_correct, created_at
		 FROM game_records WHERE quiz_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AttemptRecord, 0)
	for rows.Next() {
		var r domain.AttemptRecord
		var userID, questionID, card string
		if err := rows.Scan(&r.ID, &userID, &questionID, &card, &r.Correct, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.UserID = domain.AccountID(userID)
		r.QuestionID = domain.QuestionID(questionID)
		r.CardID = domain.CardID(card)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return records, nil
}

func (s *AttemptStore) AppendAttempts(ctx context.Context, records []domain.AttemptRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		var card interface{}
		if r.CardID != "" {
			card = string(r.CardID)
		}
		rows = append(rows, []interface{}{r.ID, string(r.UserID), string(r.QuestionID), card, r.Correct, r.CreatedAt})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"game_records"},
		[]string{"id", "user_id", "quiz_id", "card_id", "is_correct", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("append attempts: %w", err)
	}
	return nil
}
