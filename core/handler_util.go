package core

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondAppError is the only place domain errors become HTTP statuses.
func respondAppError(c *gin.Context, logger *slog.Logger, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": ve.Error(),
			"details": ve.Errors,
		}})
	case errors.Is(err, ErrRecadoNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case isAuthError(err):
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	default:
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
	}
}

// bindJSONMap decodes the body into a generic map for Schema.Validate.
func bindJSONMap(c *gin.Context) (map[string]any, error) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &ValidationError{Errors: []FieldError{{Field: "body", Message: "invalid json"}}}
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}
