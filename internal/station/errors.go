package station

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hackops/internal/apiclient"
	"hackops/internal/checkin"
)

// statusFor maps a failure class to an HTTP status.
func statusFor(err error) int {
	switch checkin.Kind(err) {
	case "no_user", "not_verified", "already_marked", "busy", "user_changed", "verification_mismatch":
		return http.StatusConflict
	case "malformed_tag":
		return http.StatusUnprocessableEntity
	case "unsupported", "transaction_failed":
		return http.StatusServiceUnavailable
	case "invalid_request":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "closed":
		return http.StatusGone
	case "remote":
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": checkin.Kind(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "invalid_request"})
}
