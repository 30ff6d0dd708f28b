/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place. Two families matter to callers:

  1. Validation errors - user-correctable, collected per-field/per-row,
     returned together; nothing is written when any are present.
  2. State errors - fatal for the request: editing or voiding a void
     header, changing a header's type, or a void that would unbalance a
     matched counterparty. Reported as sentinel errors.

  Configuration fallback (a missing named system nominal) is deliberately
  NOT an error: posting resolves to the suspense account instead.

USAGE:
  if verrs := (*ledger.ValidationErrors)(nil); errors.As(err, &verrs) {
      // re-render with verrs.Header / verrs.Lines / verrs.Matches
  }
  if errors.Is(err, ledger.ErrVoid) { ... }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrVoid is returned when editing or voiding a header that is
	// already void. One-way transition: cleared -> void.
	ErrVoid = errors.New("transaction is void")

	// ErrTypeChange is returned when an edit submits a different type.
	// Type is immutable after creation; changing it would orphan the
	// matching semantics of everything matched against the header.
	ErrTypeChange = errors.New("transaction type cannot be changed")

	// ErrVoidUnbalancesMatching is returned when voiding a header would
	// leave a matched counterparty's due outside its valid range.
	ErrVoidUnbalancesMatching = errors.New("voiding would unbalance a matched transaction")

	// ErrHeaderNotFound is returned for an unknown header id.
	ErrHeaderNotFound = errors.New("transaction not found")

	// ErrNotFound is returned by stores for any other missing row.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// VALIDATION ERRORS - accumulated per field and per row
// =============================================================================

// ValidationErrors collects every business-rule failure for a submission.
// Header maps field name to messages; Lines and Matches map the zero-based
// input row index to messages. NonField holds cross-cutting failures.
type ValidationErrors struct {
	Header   map[string][]string
	Lines    map[int][]string
	Matches  map[int][]string
	NonField []string
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Header:  map[string][]string{},
		Lines:   map[int][]string{},
		Matches: map[int][]string{},
	}
}

func (v *ValidationErrors) AddField(field, msg string) {
	v.Header[field] = append(v.Header[field], msg)
}

func (v *ValidationErrors) AddLine(row int, msg string) {
	v.Lines[row] = append(v.Lines[row], msg)
}

func (v *ValidationErrors) AddMatch(row int, msg string) {
	v.Matches[row] = append(v.Matches[row], msg)
}

func (v *ValidationErrors) AddNonField(msg string) {
	v.NonField = append(v.NonField, msg)
}

// Empty reports whether any failure has been recorded.
func (v *ValidationErrors) Empty() bool {
	return len(v.Header) == 0 && len(v.Lines) == 0 &&
		len(v.Matches) == 0 && len(v.NonField) == 0
}

// ErrOrNil returns v as an error when non-empty, else nil. Callers must
// use this rather than returning v directly: a typed nil in an error
// interface is not nil.
func (v *ValidationErrors) ErrOrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	var parts []string
	for field, msgs := range v.Header {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	for row, msgs := range v.Lines {
		parts = append(parts, fmt.Sprintf("line %d: %s", row+1, strings.Join(msgs, "; ")))
	}
	for row, msgs := range v.Matches {
		parts = append(parts, fmt.Sprintf("match %d: %s", row+1, strings.Join(msgs, "; ")))
	}
	parts = append(parts, v.NonField...)
	return "validation failed: " + strings.Join(parts, " | ")
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports an error the caller can fix and resubmit.
func IsClientError(err error) bool {
	var verrs *ValidationErrors
	return errors.As(err, &verrs)
}

// IsStateError reports a fatal state conflict; retrying the same request
// cannot succeed.
func IsStateError(err error) bool {
	return errors.Is(err, ErrVoid) ||
		errors.Is(err, ErrTypeChange) ||
		errors.Is(err, ErrVoidUnbalancesMatching)
}

// IsNotFound reports a missing header or reference row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHeaderNotFound) || errors.Is(err, ErrNotFound)
}
