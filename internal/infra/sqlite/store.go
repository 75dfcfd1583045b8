package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"history-ranking-service/internal/domain"
)

// Store keeps cards, questions, users and attempts in a single SQLite file.
// It implements the question-set loader, attempt store and identity resolver.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "ranking.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCard inserts or renames a card.
func (s *Store) CreateCard(ctx context.Context, cardID domain.CardID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (id, title, created_at_unix) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title`,
		string(cardID), title, time.Now().UTC().UnixNano(),
	)
	return err
}

// AddQuestion appends a question to a card; position follows insertion order.
func (s *Store) AddQuestion(ctx context.Context, cardID domain.CardID, q domain.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, card_id, position, kind, prompt, options_json, correct_answer, score)
		 VALUES (?, ?, (SELECT COUNT(*) FROM questions WHERE card_id = ?), ?, ?, ?, ?, ?)`,
		string(q.ID), string(cardID), string(cardID), string(q.Kind), q.Prompt, string(options), q.CorrectAnswer, q.Score,
	)
	return err
}

// UpsertUser registers an account and its display handle.
func (s *Store) UpsertUser(ctx context.Context, id domain.AccountID, handle domain.DisplayHandle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, handle) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET handle = excluded.handle`,
		string(id), string(handle),
	)
	return err
}

func (s *Store) LoadQuestionSet(ctx context.Context, cardID domain.CardID) (domain.QuestionSet, error) {
	set := domain.QuestionSet{CardID: cardID, Questions: []domain.Question{}}
	err := s.db.QueryRowContext(ctx, `SELECT title FROM cards WHERE id = ?`, string(cardID)).Scan(&set.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrCardNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load card: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, prompt, options_json, correct_answer, score
		 FROM questions WHERE card_id = ?
		 ORDER BY position`,
		string(cardID),
	)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q                 domain.Question
			id, kind, options string
		)
		if err := rows.Scan(&id, &kind, &q.Prompt, &options, &q.CorrectAnswer, &q.Score); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("decode options of %s: %w", id, err)
		}
		q.ID = domain.QuestionID(id)
		q.Kind = domain.QuestionKind(kind)
		set.Questions = append(set.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	return set, nil
}

func (s *Store) FetchAttempts(ctx context.Context, questionIDs []domain.QuestionID) ([]domain.AttemptRecord, error) {
	records := make([]domain.AttemptRecord, 0)
	if len(questionIDs) == 0 {
		return records, nil
	}
	args := make([]interface{}, 0, len(questionIDs))
	for _, id := range questionIDs {
		args = append(args, string(id))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, question_id, card_id, is_correct, created_at_unix
		 FROM attempts WHERE question_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                          domain.AttemptRecord
			userID, questionID, cardID string
			createdNs                  int64
		)
		if err := rows.Scan(&r.ID, &userID, &questionID, &cardID, &r.Correct, &createdNs); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.UserID = domain.AccountID(userID)
		r.QuestionID = domain.QuestionID(questionID)
		r.CardID = domain.CardID(cardID)
		r.CreatedAt = time.Unix(0, createdNs).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return records, nil
}

// AppendAttempts inserts the batch in one transaction.
func (s *Store) AppendAttempts(ctx context.Context, records []domain.AttemptRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempts (id, user_id, question_id, card_id, is_correct, created_at_unix)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, string(r.UserID), string(r.QuestionID), string(r.CardID), r.Correct, r.CreatedAt.UTC().UnixNano(),
		); err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ResolveDisplayNames(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error) {
	out := make(map[domain.AccountID]domain.DisplayHandle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, string(id))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := s.db.QueryContext(ctx, `SELECT id, handle FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, handle string
		if err := rows.Scan(&id, &handle); err != nil {
			return nil, fmt.Errorf("scan display name: %w", err)
		}
		out[domain.AccountID(id)] = domain.DisplayHandle(handle)
	}
	return out, rows.Err()
}
