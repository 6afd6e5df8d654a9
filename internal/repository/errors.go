// Package repository provides data access layer implementations.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrMissionNotFound  = errors.New("mission not found")
	ErrDailyLogNotFound = errors.New("daily log not found")
	ErrClanNotFound     = errors.New("clan not found")
	ErrNotClanMember    = errors.New("user is not in a clan")
	ErrAlreadyInClan    = errors.New("user already belongs to a clan")
	ErrClanFull         = errors.New("clan is full")
	ErrLevelTooLow      = errors.New("user level below clan minimum")
	ErrClanNameTaken    = errors.New("clan name already taken")
	ErrDifferentClan    = errors.New("users are not in the same clan")
	ErrRankTooLow       = errors.New("insufficient clan rank")
	ErrClaimExists      = errors.New("event reward already claimed")
	ErrPeriodMismatch   = errors.New("clan event period changed")
	ErrRunNotFound      = errors.New("maintenance run not found")
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
