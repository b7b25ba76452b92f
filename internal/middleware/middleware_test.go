package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"commons-chat/internal/auth"
	"commons-chat/internal/middleware"
	"commons-chat/pkg/logger"
)

const testSecret = "middleware-secret"

func newObservedRouter(handler gin.HandlerFunc) (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	l := &logger.Logger{Logger: zap.New(core)}

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(l))
	r.Use(middleware.AuthMiddleware(auth.NewTokenVerifier(testSecret)))
	r.GET("/resource", handler)
	return r, logs
}

func signedToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func fieldValue(entry observer.LoggedEntry, key string) (string, bool) {
	for _, f := range entry.Context {
		if f.Key == key {
			return f.String, true
		}
	}
	return "", false
}

func TestRequestLogCarriesRequestAndUserIDs(t *testing.T) {
	userID := uuid.New()
	r, logs := newObservedRouter(func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, userID))
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "request completed", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	requestID, ok := fieldValue(entries[0], "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-42", requestID)

	loggedUser, ok := fieldValue(entries[0], "user_id")
	require.True(t, ok)
	assert.Equal(t, userID.String(), loggedUser)

	method, _ := fieldValue(entries[0], "method")
	assert.Equal(t, http.MethodGet, method)
}

func TestRequestLogGeneratesRequestIDWhenAbsent(t *testing.T) {
	r, logs := newObservedRouter(func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, uuid.New()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// The generated id is echoed to the client and logged.
	echoed := w.Header().Get("X-Request-Id")
	require.NotEmpty(t, echoed)

	entries := logs.All()
	require.Len(t, entries, 1)
	logged, ok := fieldValue(entries[0], "request_id")
	require.True(t, ok)
	assert.Equal(t, echoed, logged)
}

func TestServerErrorsLogAtErrorLevel(t *testing.T) {
	r, logs := newObservedRouter(func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, uuid.New()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "request failed", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestAuthMiddlewareRejectsMissingBearer(t *testing.T) {
	r, logs := newObservedRouter(func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The rejection is still logged, but without a user id.
	entries := logs.All()
	require.Len(t, entries, 1)
	_, hasUser := fieldValue(entries[0], "user_id")
	assert.False(t, hasUser)
}
