package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"itinerary-router/internal/handlers"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	// AnonymousUser owns all data when no JWT secret is configured
	AnonymousUser = "anonymous"
)

// requestID tags each request with an id, reusing a client supplied one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(requestIDKey))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{
		Error: handlers.ErrorDetail{Code: "UNAUTHORIZED", Message: message},
	})
}

// authenticate verifies an HS256 bearer token and stores its subject as the
// user id. An empty secret admits every request as AnonymousUser.
func authenticate(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) {
			c.Set(handlers.UserIDKey, AnonymousUser)
			c.Next()
		}
	}

	key := []byte(secret)
	keyFunc := func(*jwt.Token) (interface{}, error) { return key, nil }

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			unauthorized(c, "Missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			unauthorized(c, "Invalid token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "Token has no subject")
			return
		}

		c.Set(handlers.UserIDKey, claims.Subject)
		c.Next()
	}
}
