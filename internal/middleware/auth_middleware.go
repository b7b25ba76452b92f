package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"commons-chat/internal/auth"
	"commons-chat/internal/transport/httpdto"
	"commons-chat/pkg/logger"
)

func AuthMiddleware(verifier *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		userID, err := verifier.Parse(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := auth.WithUserID(c.Request.Context(), userID)
		ctx = context.WithValue(ctx, logger.UserIdKey, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
