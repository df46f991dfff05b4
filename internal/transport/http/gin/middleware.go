package httpgin

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
)

const actorKey = "actor"

var (
	errMissingToken = apperr.E(apperr.Unauthorized, "missing bearer token")
	errRateLimited  = apperr.E(apperr.RateLimited, "too many requests")
)

// TokenVerifier turns a bearer token into an actor.
type TokenVerifier interface {
	Verify(token string) (domain.Actor, error)
}

// Limiter decides whether id may make another request.
type Limiter interface {
	Allow(ctx context.Context, id string) (redisrepo.Decision, error)
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			"GET", "POST", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Idempotency-Key",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
			"Retry-After",
			"Idempotency-Key",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	return cors.New(cfg)
}

func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		reqID, _ := c.Get("request_id")

		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.String("ua", c.Request.UserAgent()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", latency),
			slog.Int("bytes_out", c.Writer.Size()),
		}
		if a, ok := c.Get(actorKey); ok {
			attrs = append(attrs, slog.String("actor_id", a.(domain.Actor).ID.String()))
		}

		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("err", c.Errors.String()))
			logger.Error("http", slog.Group("http", attrs...))
		} else {
			logger.Info("http", slog.Group("http", attrs...))
		}
	}
}

// AuthMiddleware requires a valid bearer token and stores the actor on the
// context.
func AuthMiddleware(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondErr(c, errMissingToken)
			return
		}

		actor, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// TimeoutMiddleware bounds the request context. Streaming routes must not
// sit behind it.
func TimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimitMiddleware limits requests per actor. A nil limiter disables it;
// limiter failures let the request through.
func RateLimitMiddleware(l Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		id := actorFrom(c).ID.String()
		d, err := l.Allow(c.Request.Context(), id)
		if err != nil {
			logger.Warn("rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		if !d.Allowed {
			secs := int(d.RetryAfter.Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
			respondErr(c, errRateLimited)
			return
		}

		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(domain.Actor); ok {
			return a
		}
	}
	return domain.Actor{}
}
