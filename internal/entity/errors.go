package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockUnavailable is returned when a conditional decrement matched no
	// row, so the product is either missing or short on stock.
	ErrStockUnavailable    = errors.New("insufficient stock or product not found")
	ErrInfrastructure      = errors.New("infrastructure error")
	ErrDuplicateSubmission = &ValidationError{Field: "submission_token", Reason: "order already submitted"}
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InfrastructureError wraps a connection, pool, transport or datastore failure.
// Error includes the cause for logs; UserMessage does not.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	if e.Err == nil {
		return e.Op + ": infrastructure failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}

// UserMessage is safe to show to a shopper.
func (e *InfrastructureError) UserMessage() string {
	return "The service is temporarily unavailable. Please try again later."
}

// Infra wraps err as an InfrastructureError unless it already is one.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeRejected covers insufficient stock and a missing product.
	OutcomeRejected
	OutcomeInvalid
	OutcomeInfrastructureError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "insufficient_stock_or_not_found"
	case OutcomeInvalid:
		return "validation_error"
	default:
		return "infrastructure_error"
	}
}

// OutcomeOf classifies the error returned by an order placement.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInfrastructure):
		return OutcomeInfrastructureError
	case errors.Is(err, ErrStockUnavailable),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrNotFound):
		return OutcomeRejected
	case errors.Is(err, ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeInfrastructureError
	}
}
