package domain

import "errors"

var (
	// ErrInvalidID is returned for malformed identifiers; always caller-fixable.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrPaperNotFound indicates the referenced paper does not exist.
	ErrPaperNotFound = errors.New("paper not found")
	// ErrAttemptNotFound indicates the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrEmptyPaper is returned when a paper has zero questions; an attempt cannot start.
	ErrEmptyPaper = errors.New("paper has no questions")
	// ErrForbidden is returned when the caller lacks ownership or entitlement.
	ErrForbidden = errors.New("forbidden")
	// ErrAttemptConflict signals an in-progress attempt already exists for this
	// (user, paper); the caller should resume it instead of retrying Start.
	ErrAttemptConflict = errors.New("attempt already in progress")
	// ErrInvalidState is returned when an operation requires a state the
	// attempt is not in (e.g. answering a submitted attempt).
	ErrInvalidState = errors.New("attempt not in required state")
	// ErrUnknownQuestion indicates a question ID outside the attempt's frozen snapshot.
	ErrUnknownQuestion = errors.New("question not part of attempt")
	// ErrOptionOutOfRange indicates a selected index outside the option bounds.
	ErrOptionOutOfRange = errors.New("selected option out of range")
	// ErrTimeLimitExceeded is returned when submission happened past the
	// paper's allotted duration. The attempt is still finalized with a zero
	// score before this is reported.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
)
