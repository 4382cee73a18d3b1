package log

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Middleware puts logger into every request context. Handlers reach it
// through FromContext(c.Request.Context()).
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// ComponentMiddleware narrows the request logger to component.
func ComponentMiddleware(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(WithLogger(ctx, FromContext(ctx).WithComponent(component)))
		c.Next()
	}
}

// RequestIDMiddleware adds the request ID returned by extract to the
// request logger.
func RequestIDMiddleware(extract func(context.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := extract(ctx); id != "" {
			c.Request = c.Request.WithContext(WithLogger(ctx, FromContext(ctx).With(FieldRequestID, id)))
		}
		c.Next()
	}
}

// UserMiddleware adds the authenticated user to the request logger.
func UserMiddleware(userID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := userID(c); id != "" {
			ctx := c.Request.Context()
			c.Request = c.Request.WithContext(WithLogger(ctx, FromContext(ctx).With(FieldUserID, id)))
		}
		c.Next()
	}
}
