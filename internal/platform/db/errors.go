package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeCheckViolation     = "23514"
)

// NotFound converts pgx.ErrNoRows into ErrNotFound.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func IsUniqueViolation(err error) bool    { return hasCode(err, codeUniqueViolation) }
func IsExclusionViolation(err error) bool { return hasCode(err, codeExclusionViolation) }
func IsCheckViolation(err error) bool     { return hasCode(err, codeCheckViolation) }

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
