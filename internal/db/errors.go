package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thebtf/recall/pkg/models"
)

// classifyAcquire maps low-level errors from pool acquisition or
// transaction execution onto the caller-facing taxonomy. A deadline that
// fired while every connection was checked out is pool exhaustion, not a
// query timeout; the caller's own cancellation passes through unchanged.
func (s *Store) classifyAcquire(callerCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && s.Saturated() {
		return models.ErrPoolExhausted
	}
	return err
}

// wrapStorage converts driver-level failures into a StorageError, leaving
// the taxonomy errors (validation, not-found, pool exhaustion) and
// context cancellation untouched.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *models.ValidationError
	var nf *models.NotFoundError
	switch {
	case errors.As(err, &ve), errors.As(err, &nf):
		return err
	case errors.Is(err, models.ErrPoolExhausted):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &models.StorageError{Op: op + " (" + pgErr.Code + ")", Err: err}
	}
	return &models.StorageError{Op: op, Err: err}
}
