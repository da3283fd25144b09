package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/court-capture/internal/repository"
	"github.com/gin-gonic/gin"
)

// EnsureUser runs after Auth. It upserts the token subject so owner foreign
// keys on jobs and schedules always resolve, and keeps the email current for
// failure notifications.
func EnsureUser(repo repository.UserRepository, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var email *string
		if v := c.GetString(UserEmailKey); v != "" {
			email = &v
		}
		if err := repo.Upsert(c.Request.Context(), c.GetString(UserIDKey), email); err != nil {
			logger.ErrorContext(c.Request.Context(), "ensure user upsert", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "Internal server error"})
			return
		}
		c.Next()
	}
}
