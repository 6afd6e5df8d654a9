// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"

	"habit-quest/internal/repository"
)

// Kind classifies a service error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a business-rule failure with a message safe to show to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// PublicMessage is what a caller may see for err. Internal errors are
// replaced with a generic message.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Kind != KindInternal {
		return se.Msg
	}
	return "internal error"
}

// Business-rule errors.
var (
	ErrUserNotFound = newError(KindNotFound, "user not found")

	ErrMissionNotFound         = newError(KindNotFound, "mission not found")
	ErrNotMissionOwner         = newError(KindUnauthorized, "mission belongs to another user")
	ErrMissionAlreadyCompleted = newError(KindConflict, "mission already completed")
	ErrMissionChanged          = newError(KindConflict, "mission was updated concurrently, retry")
	ErrFinalStepNeedsComplete  = newError(KindConflict, "the final step must be recorded with complete")

	ErrClanNotFound     = newError(KindNotFound, "clan not found")
	ErrNotInClan        = newError(KindNotFound, "you are not in a clan")
	ErrNotSameClan      = newError(KindNotFound, "user is not in your clan")
	ErrAlreadyInClan    = newError(KindConflict, "you already belong to a clan")
	ErrClanFull         = newError(KindConflict, "clan is full")
	ErrClanNameTaken    = newError(KindConflict, "clan name already taken")
	ErrLevelTooLow      = newError(KindForbidden, "your level is below the clan minimum")
	ErrInsufficientRank = newError(KindForbidden, "insufficient clan rank")

	ErrInvalidTier      = newError(KindValidation, "tier must be between 1 and 5")
	ErrEventReset       = newError(KindConflict, "the weekly event has reset, reload your clan")
	ErrAlreadyClaimed   = newError(KindConflict, "reward already claimed")
	ErrGoalNotReached   = newError(KindForbidden, "clan has not reached this tier yet")
	ErrInvalidMilestone = newError(KindValidation, "unknown milestone")
	ErrMilestoneLocked  = newError(KindForbidden, "not enough event points for this milestone")

	ErrMaintenanceAlreadyRan = newError(KindConflict, "maintenance already ran for this date")
)

// translate maps repository sentinels to business errors and wraps anything
// else as internal.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != KindInternal:
		return err
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrMissionNotFound):
		return ErrMissionNotFound
	case errors.Is(err, repository.ErrClanNotFound):
		return ErrClanNotFound
	case errors.Is(err, repository.ErrNotClanMember):
		return ErrNotInClan
	case errors.Is(err, repository.ErrAlreadyInClan):
		return ErrAlreadyInClan
	case errors.Is(err, repository.ErrClanFull):
		return ErrClanFull
	case errors.Is(err, repository.ErrLevelTooLow):
		return ErrLevelTooLow
	case errors.Is(err, repository.ErrClanNameTaken):
		return ErrClanNameTaken
	case errors.Is(err, repository.ErrDifferentClan):
		return ErrNotSameClan
	case errors.Is(err, repository.ErrRankTooLow):
		return ErrInsufficientRank
	case errors.Is(err, repository.ErrClaimExists):
		return ErrAlreadyClaimed
	case errors.Is(err, repository.ErrPeriodMismatch):
		return ErrEventReset
	}
	return fmt.Errorf("%s: %w", op, err)
}
