package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCardNotFound is returned when the requested quiz-set does not exist.
	ErrCardNotFound = errors.New("card not found")
	// ErrQuestionNotFound indicates a submitted question is not part of the card.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrViewerRequired is returned when an operation needs an authenticated caller.
	ErrViewerRequired = errors.New("viewer identity required")
	// ErrEmptySubmission indicates an attempt batch without answers.
	ErrEmptySubmission = errors.New("no answers submitted")
	// ErrDuplicateAnswer indicates a batch answering the same question twice.
	ErrDuplicateAnswer = errors.New("question answered more than once")
	// ErrInvalidWindow indicates an unknown ranking window.
	ErrInvalidWindow = errors.New("invalid ranking window")
)

// DependencyError reports a failed call into a backing store.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Dependency wraps err as a DependencyError for op. Nil stays nil.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var dep *DependencyError
	if errors.As(err, &dep) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}
