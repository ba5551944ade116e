package httpx

import (
	"errors"
	"net/http"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	var pub *shared.PublicError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: shared.UserSafeMessage(err),
			Fields: verr.Fields,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.As(err, &pub):
		Problem(w, http.StatusConflict, "Conflict", pub.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
