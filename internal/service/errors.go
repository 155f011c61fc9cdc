package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("authenticated operator required")
	ErrForbidden       = errors.New("manager role required")
)

// ValidationError rejects input before any write is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// WriteFailure means a persistence call failed and nothing after that step
// was attempted.
type WriteFailure struct {
	Step string
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}

type LineFailure struct {
	ArticleID         string `json:"article_id"`
	ArticleName       string `json:"article_name,omitempty"`
	StockAdjustFailed bool   `json:"stock_adjust_failed"`
	MovementFailed    bool   `json:"movement_failed"`
	Reason            string `json:"reason"`
}

// PartialCommitError reports lines whose stock adjustment or movement append
// failed after the sales were stored. The sale stands; stock may be wrong.
type PartialCommitError struct {
	CommitID string
	Lines    []LineFailure
}

func (e *PartialCommitError) Error() string {
	names := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		name := line.ArticleName
		if name == "" {
			name = line.ArticleID
		}
		names = append(names, name)
	}
	return fmt.Sprintf("sale recorded, inventory adjustment failed for %s", strings.Join(names, ", "))
}
