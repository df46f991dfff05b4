package httpgin

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/campusgo/internal/service"
)

const defaultHeartbeat = 15 * time.Second

// @Summary  Live check-in feed (server-sent events)
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Produce  text/event-stream
// @Success  200
// @Failure  403 {object} ErrorResponse
// @Router   /events/{id}/checkins/stream [get]
func handleCheckInStream(svcs *service.Services, feed LiveFeed, heartbeat time.Duration) gin.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Query.AuthorizeEventStaff(c.Request.Context(), actorFrom(c), eventID); err != nil {
			respondErr(c, err)
			return
		}

		updates, unsubscribe := feed.Subscribe(eventID)
		defer unsubscribe()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		c.SSEvent("ready", gin.H{"event_id": eventID})
		c.Writer.Flush()

		done := c.Request.Context().Done()
		c.Stream(func(io.Writer) bool {
			select {
			case <-done:
				return false
			case u, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent(u.Type, u)
				return true
			case t := <-ticker.C:
				c.SSEvent("ping", t.Unix())
				return true
			}
		})
	}
}
