package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AccountID is the opaque, stable key of a user account.
type AccountID string

// DisplayHandle is the human-readable name shown next to an account.
// It is only obtained by resolving an AccountID.
type DisplayHandle string

// CardID identifies a quiz-set ("card").
type CardID string

// QuestionID identifies a single question within a card.
type QuestionID string

// fallbackHandleRunes is how much of an unresolved account id is shown.
const fallbackHandleRunes = 8

// FallbackHandle derives a display handle from an account id that could not be resolved.
func FallbackHandle(id AccountID) DisplayHandle {
	s := string(id)
	if utf8.RuneCountInString(s) <= fallbackHandleRunes {
		return DisplayHandle(s)
	}
	runes := []rune(s)
	return DisplayHandle(string(runes[:fallbackHandleRunes]) + "...")
}

// AttemptRecord is one user's answer to one question.
type AttemptRecord struct {
	ID         string
	UserID     AccountID
	QuestionID QuestionID
	CardID     CardID // optional; membership is resolved through the question set
	Correct    bool
	CreatedAt  time.Time
}

// QuestionKind distinguishes multiple choice from short answer questions.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindShortAnswer    QuestionKind = "short_answer"
)

// Question is one entry of a card's question set.
type Question struct {
	ID            QuestionID   `json:"id"`
	Kind          QuestionKind `json:"kind"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer"`
	Score         int          `json:"score"`
}

// Grade reports whether answer is correct for the question.
// Multiple choice answers must match exactly; short answers ignore case.
func (q Question) Grade(answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}
	if len(q.Options) > 0 {
		return answer == strings.TrimSpace(q.CorrectAnswer)
	}
	return strings.EqualFold(answer, strings.TrimSpace(q.CorrectAnswer))
}

// QuestionSet is the ordered list of questions on a card.
type QuestionSet struct {
	CardID    CardID     `json:"cardId"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// TotalCount is the number of questions a full pass answers.
func (s QuestionSet) TotalCount() int {
	return len(s.Questions)
}

// QuestionIDs lists question ids in set order.
func (s QuestionSet) QuestionIDs() []QuestionID {
	ids := make([]QuestionID, 0, len(s.Questions))
	for _, q := range s.Questions {
		ids = append(ids, q.ID)
	}
	return ids
}

// Question looks up a question of the set by id.
func (s QuestionSet) Question(id QuestionID) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// ParticipantSummary is the per-user reduction of a card's attempts.
type ParticipantSummary struct {
	UserID         AccountID
	DisplayName    DisplayHandle
	CorrectCount   int
	AttemptedCount int
	EarliestAt     time.Time
	IsViewer       bool
}

// RankedEntry is a participant placed on the leaderboard.
type RankedEntry struct {
	Rank           int           `json:"rank"`
	UserID         AccountID     `json:"userId"`
	DisplayName    DisplayHandle `json:"displayName"`
	CorrectCount   int           `json:"correctCount"`
	TotalQuestions int           `json:"totalQuestions"`
	Percentage     int           `json:"percentage"`
	IsViewer       bool          `json:"isViewer"`
}

// ViewerStats are the caller's personal numbers for a card.
type ViewerStats struct {
	BestPercentage int `json:"bestPercentage"`
	PlayCount      int `json:"playCount"`
}

// RankingResult is the leaderboard of a card.
type RankingResult struct {
	CardID            CardID        `json:"cardId"`
	TotalQuestions    int           `json:"totalQuestions"`
	TotalParticipants int           `json:"totalParticipants"`
	Entries           []RankedEntry `json:"entries"`
	ViewerStats       *ViewerStats  `json:"viewerStats"`
}

// RankingWindow restricts which attempts count towards a ranking.
type RankingWindow string

const (
	WindowAll   RankingWindow = "all"
	WindowToday RankingWindow = "today"
	WindowWeek  RankingWindow = "week"
)

// ParseRankingWindow accepts "", "all", "today" and "week".
func ParseRankingWindow(raw string) (RankingWindow, error) {
	switch RankingWindow(strings.ToLower(strings.TrimSpace(raw))) {
	case "", WindowAll:
		return WindowAll, nil
	case WindowToday:
		return WindowToday, nil
	case WindowWeek:
		return WindowWeek, nil
	}
	return "", ErrInvalidWindow
}

// Since returns the earliest attempt time the window admits, and false for WindowAll.
func (w RankingWindow) Since(now time.Time) (time.Time, bool) {
	switch w {
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case WindowWeek:
		return now.Add(-7 * 24 * time.Hour), true
	}
	return time.Time{}, false
}

// AnswerSubmission is one answer sent during gameplay.
type AnswerSubmission struct {
	QuestionID QuestionID `json:"questionId"`
	Answer     string     `json:"answer"`
}

// AnswerResult is the graded outcome of one submission.
type AnswerResult struct {
	QuestionID QuestionID `json:"questionId"`
	Correct    bool       `json:"correct"`
}

// PassResult summarizes a recorded batch of answers.
type PassResult struct {
	CardID         CardID         `json:"cardId"`
	Results        []AnswerResult `json:"results"`
	CorrectCount   int            `json:"correctCount"`
	TotalQuestions int            `json:"totalQuestions"`
	Percentage     int            `json:"percentage"`
}

// RankingUpdate notifies subscribers that a card's attempt log changed.
type RankingUpdate struct {
	CardID CardID    `json:"cardId"`
	At     time.Time `json:"at"`
}
