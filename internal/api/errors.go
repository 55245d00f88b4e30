package api

import (
	"errors"
	"net/http"

	"storefront/internal/entity"
)

// statusOf maps the entity error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch entity.OutcomeOf(err) {
	case entity.OutcomeSuccess:
		return http.StatusOK
	case entity.OutcomeInvalid:
		return http.StatusBadRequest
	case entity.OutcomeRejected:
		if errors.Is(err, entity.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// messageOf is the text shown to the user. Infrastructure errors never expose
// their cause.
func messageOf(err error) string {
	var infra *entity.InfrastructureError
	var verr *entity.ValidationError
	switch {
	case errors.As(err, &infra):
		return infra.UserMessage()
	case errors.Is(err, entity.ErrDuplicateSubmission):
		return "This order has already been submitted."
	case errors.Is(err, entity.ErrStockUnavailable):
		return "The product is out of stock or could not be found."
	case errors.Is(err, entity.ErrInsufficientStock):
		return "The product is out of stock."
	case errors.Is(err, entity.ErrNotFound):
		return "The product could not be found."
	case errors.As(err, &verr):
		return verr.Error()
	default:
		return (&entity.InfrastructureError{}).UserMessage()
	}
}

func jsonError(err error) map[string]string {
	if errors.Is(err, entity.ErrNotFound) {
		return map[string]string{"error": "not found"}
	}
	return map[string]string{"error": messageOf(err)}
}
