package httpgin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/live"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/service"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// EffectSink receives the post-commit effects of a handled request.
type EffectSink interface {
	Enqueue(effects domain.Effects)
}

// LiveFeed streams per-event updates to dashboards.
type LiveFeed interface {
	Subscribe(eventID uuid.UUID) (<-chan live.Update, func())
}

// Deps are the router's collaborators. Idempotency and both limiters may
// be nil.
type Deps struct {
	Services        *service.Services
	Effects         EffectSink
	Verifier        TokenVerifier
	Feed            LiveFeed
	Idempotency     *redisrepo.IdempotencyStore
	RegisterLimiter Limiter
	CheckInLimiter  Limiter
	RequestTimeout  time.Duration
	StreamHeartbeat time.Duration
}

func NewRouter(
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	svcs := deps.Services

	api := r.Group("/", AuthMiddleware(deps.Verifier))

	// Streams outlive any request timeout.
	api.GET("/events/:id/checkins/stream", handleCheckInStream(svcs, deps.Feed, deps.StreamHeartbeat))

	timed := api.Group("/", TimeoutMiddleware(deps.RequestTimeout))
	{
		timed.POST("/registrations",
			RateLimitMiddleware(deps.RegisterLimiter, logger),
			handleRegister(svcs, deps.Effects, deps.Idempotency))
		timed.GET("/registrations", handleListMyRegistrations(svcs))
		timed.DELETE("/registrations/:id", handleCancelRegistration(svcs, deps.Effects))
		timed.GET("/registrations/:id/qr", handleTicketQR(svcs))
		timed.GET("/registrations/:id/ticket.pdf", handleTicketPDF(svcs))

		checkInLimit := RateLimitMiddleware(deps.CheckInLimiter, logger)
		timed.POST("/checkin", checkInLimit, handleCheckIn(svcs, deps.Effects))
		timed.POST("/checkin/manual", checkInLimit, handleManualCheckIn(svcs, deps.Effects))

		timed.GET("/events/:id", handleGetEvent(svcs))
		timed.GET("/events/:id/registrations", handleListEventRegistrations(svcs))
		timed.GET("/events/:id/checkins", handleListEventCheckIns(svcs))

		timed.GET("/events/:id/staff", handleListStaff(svcs))
		timed.POST("/events/:id/staff", handleAssignStaff(svcs, deps.Effects))
		timed.DELETE("/events/:id/staff/:staffId", handleUnassignStaff(svcs, deps.Effects))

		timed.GET("/events/:id/announcements", handleListAnnouncements(svcs))
		timed.POST("/events/:id/announcements", handleCreateAnnouncement(svcs, deps.Effects))
	}

	return r
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: msg,
		Kind:  string(apperr.InvalidArgument),
	})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidState, apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.CapacityExceeded, apperr.AlreadyExists, apperr.Conflict:
		return http.StatusConflict
	case apperr.OutOfWindow:
		return http.StatusUnprocessableEntity
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	kind := apperr.KindOf(err)
	switch kind {
	case apperr.Internal:
		_ = c.Error(err)
	case apperr.Unavailable:
		c.Header("Retry-After", "1")
	}

	c.AbortWithStatusJSON(statusOf(kind), ErrorResponse{
		Error:   apperr.Message(err),
		Kind:    string(kind),
		Details: apperr.DetailsOf(err),
	})
}
