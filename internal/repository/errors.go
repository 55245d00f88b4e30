package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"storefront/internal/entity"
)

// MySQL server error numbers the repository interprets.
const (
	errLockWaitTimeout     = 1205
	errDeadlock            = 1213
	errNoReferencedRow     = 1452
	errCheckConstraintFail = 3819
)

// translate maps a driver error onto the entity error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &entity.InfrastructureError{Op: op + ": timed out", Err: err}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errNoReferencedRow:
			return entity.ErrNotFound
		case errCheckConstraintFail:
			return entity.ErrInsufficientStock
		case errLockWaitTimeout:
			return &entity.InfrastructureError{Op: op + ": lock wait timeout", Err: err}
		case errDeadlock:
			return &entity.InfrastructureError{Op: op + ": deadlock", Err: err}
		}
	}
	return entity.Infra(op, err)
}
