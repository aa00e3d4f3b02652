package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto a JSON response. Internal errors
// are logged and replaced by a generic message.
func (s *Server) writeError(c *gin.Context, err error) {
	code := statusFor(err)

	var quota *common.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		c.JSON(code, gin.H{"error": "token quota exceeded", "remaining": quota.Remaining, "limit": quota.Limit})
	case code == http.StatusInternalServerError:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(code, gin.H{"error": "internal error"})
	default:
		c.JSON(code, gin.H{"error": err.Error()})
	}
}
