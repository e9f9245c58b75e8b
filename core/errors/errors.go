package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a ledger failure by who is expected to act on it.
type Kind uint8

const (
	// KindValidation marks caller-correctable input problems rejected before
	// any mutation.
	KindValidation Kind = iota + 1
	// KindState marks expected runtime conditions.
	KindState
	// KindInvariant marks configuration or programming defects.
	KindInvariant
	// KindScheduling marks rejected pool distribution attempts.
	KindScheduling
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindInvariant:
		return "invariant"
	case KindScheduling:
		return "scheduling"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned across the ledger boundary.
type Error struct {
	Kind   Kind
	Code   string
	Field  string
	Detail string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "ledger: " + e.Code
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches errors sharing the same code so sentinels work with errors.Is
// regardless of field and detail.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stderrors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// With returns a copy of e annotated with the offending field and detail.
func (e *Error) With(field, format string, args ...any) *Error {
	clone := *e
	clone.Field = field
	if format != "" {
		clone.Detail = fmt.Sprintf(format, args...)
	}
	return &clone
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

var (
	ErrDuplicateRegistration = newError(KindValidation, "duplicate_registration")
	ErrInvalidParticipant    = newError(KindValidation, "invalid_participant")
	ErrInvalidReferrer       = newError(KindValidation, "invalid_referrer")
	ErrInvalidPackage        = newError(KindValidation, "invalid_package")
	ErrInvalidAmount         = newError(KindValidation, "invalid_amount")
	ErrRootAlreadyExists     = newError(KindValidation, "root_already_exists")
	ErrInvalidRateTable      = newError(KindValidation, "invalid_rate_table")

	ErrUserNotRegistered  = newError(KindState, "user_not_registered")
	ErrNothingToWithdraw  = newError(KindState, "nothing_to_withdraw")
	ErrParticipantBlocked = newError(KindState, "participant_inactive")
	ErrPaused             = newError(KindState, "paused")

	ErrInvariantViolation = newError(KindInvariant, "invariant_violation")

	ErrAlreadyDistributed = newError(KindScheduling, "already_distributed")
	ErrEmptyEligibleSet   = newError(KindScheduling, "empty_eligible_set")
	ErrUnknownPool        = newError(KindScheduling, "unknown_pool")
)

// KindOf returns the kind of a ledger error, or zero for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if stderrors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// IsInvariant reports whether err signals a broken invariant.
func IsInvariant(err error) bool {
	return KindOf(err) == KindInvariant
}
