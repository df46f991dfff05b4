package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/service"
	"github.com/kirinyoku/campusgo/internal/service/announcement"
	"github.com/kirinyoku/campusgo/internal/ticket"
)

const idemLockTTL = 60 * time.Second

// @Summary  Register for an event (idempotent)
// @Security BearerAuth
// @Param    req body  RegisterRequest true "payload"
// @Param    Idempotency-Key header string false "client retry key"
// @Success  201 {object} RegistrationResponse
// @Failure  400 {object} ErrorResponse "event not open"
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "fully booked / already registered / key in progress or reused"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /registrations [post]
func handleRegister(
	svcs *service.Services,
	effects EffectSink,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		eventID, err := uuid.Parse(req.EventID)
		if err != nil {
			badRequest(c, "invalid event_id")
			return
		}

		actor := actorFrom(c)
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemRegister(actor.ID, idemKey)
			fingerprint = registerFingerprint(eventID)

			payload, ok, err := idem.GetResult(ctx, idemStorageKey, fingerprint)
			if errors.Is(err, redisrepo.ErrKeyReused) {
				respondErr(c, errIdemKeyReused)
				return
			}
			if ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, fingerprint, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				payload, ok, err := idem.GetResult(ctx, idemStorageKey, fingerprint)
				if errors.Is(err, redisrepo.ErrKeyReused) {
					respondErr(c, errIdemKeyReused)
					return
				}
				if ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
					Error: "idempotency key in progress",
					Kind:  string(apperr.Conflict),
				})
				return
			}
		}

		reg, eff, err := svcs.Registration.Register(ctx, actor.ID, eventID)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}
		effects.Enqueue(eff)

		resp := RegistrationResponse{Registration: *reg}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(ctx, idemStorageKey, fingerprint, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

var errIdemKeyReused = apperr.E(apperr.Conflict, "idempotency key already used for a different request")

// registerFingerprint identifies a registration request for idempotency.
func registerFingerprint(eventID uuid.UUID) string {
	sum := sha256.Sum256([]byte("POST /registrations\n" + eventID.String()))
	return hex.EncodeToString(sum[:])
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

// @Summary  List my registrations
// @Security BearerAuth
// @Success  200 {array} domain.RegistrationWithEvent
// @Router   /registrations [get]
func handleListMyRegistrations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		regs, err := svcs.Query.ListMyRegistrations(c.Request.Context(), actorFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		if regs == nil {
			regs = []domain.RegistrationWithEvent{}
		}
		c.JSON(http.StatusOK, regs)
	}
}

// @Summary  Cancel a registration
// @Security BearerAuth
// @Param    id  path  string  true  "Registration ID (uuid)"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /registrations/{id} [delete]
func handleCancelRegistration(svcs *service.Services, effects EffectSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		eff, err := svcs.Registration.Cancel(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		effects.Enqueue(eff)
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Ticket QR code
// @Security BearerAuth
// @Param    id    path   string  true   "Registration ID (uuid)"
// @Param    size  query  int     false  "image width in pixels"
// @Produce  png
// @Success  200
// @Router   /registrations/{id}/qr [get]
func handleTicketQR(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Query.GetTicket(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		size, _ := strconv.Atoi(c.Query("size"))
		png, err := ticket.QR(t.Registration.Code, min(size, 1024))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "private, max-age=300")
		c.Data(http.StatusOK, "image/png", png)
	}
}

// @Summary  Printable ticket
// @Security BearerAuth
// @Param    id  path  string  true  "Registration ID (uuid)"
// @Produce  application/pdf
// @Success  200
// @Router   /registrations/{id}/ticket.pdf [get]
func handleTicketPDF(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Query.GetTicket(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		pdf, err := ticket.PDF(t.Registration, t.Event)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ticket-%s.pdf"`, id))
		c.Header("Cache-Control", "private, no-store")
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// @Summary  Check in a ticket
// @Security BearerAuth
// @Param    req body  CheckInRequest true "payload; method defaults to QR_CODE"
// @Success  201 {object} CheckInResponse
// @Failure  400 {object} ErrorResponse "not confirmed / event not active"
// @Failure  403 {object} ErrorResponse "not assigned to this event"
// @Failure  404 {object} ErrorResponse "invalid code"
// @Failure  409 {object} ErrorResponse "already checked in"
// @Failure  422 {object} ErrorResponse "outside the check-in window"
// @Router   /checkin [post]
func handleCheckIn(svcs *service.Services, effects EffectSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		checkIn(c, svcs, effects, req.Code, domain.CheckInMethod(strings.ToUpper(strings.TrimSpace(req.Method))))
	}
}

// @Summary  Check in by typed code
// @Security BearerAuth
// @Param    req body  ManualCheckInRequest true "payload"
// @Success  201 {object} CheckInResponse
// @Router   /checkin/manual [post]
func handleManualCheckIn(svcs *service.Services, effects EffectSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ManualCheckInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		checkIn(c, svcs, effects, req.Code, domain.MethodManual)
	}
}

func checkIn(c *gin.Context, svcs *service.Services, effects EffectSink, code string, method domain.CheckInMethod) {
	rec, eff, err := svcs.CheckIn.CheckIn(c.Request.Context(), actorFrom(c), code, method)
	if err != nil {
		respondErr(c, err)
		return
	}
	effects.Enqueue(eff)
	c.JSON(http.StatusCreated, CheckInResponse{CheckIn: *rec})
}

// @Summary  Event with seat counts
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  domain.EventSummary
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Query.GetEventSummary(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, s, "private, max-age=15")
	}
}

// @Summary  Attendee list with check-in state
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200 {array} domain.AttendeeRow
// @Failure  403 {object} ErrorResponse
// @Router   /events/{id}/registrations [get]
func handleListEventRegistrations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		rows, err := svcs.Query.ListEventRegistrations(c.Request.Context(), actorFrom(c), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		if rows == nil {
			rows = []domain.AttendeeRow{}
		}
		c.JSON(http.StatusOK, rows)
	}
}

// @Summary  Check-ins of an event
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200 {array} domain.CheckIn
// @Router   /events/{id}/checkins [get]
func handleListEventCheckIns(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		rows, err := svcs.Query.ListEventCheckIns(c.Request.Context(), actorFrom(c), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		if rows == nil {
			rows = []domain.CheckIn{}
		}
		c.JSON(http.StatusOK, rows)
	}
}

// @Summary  Staff assigned to an event
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200 {object} StaffListResponse
// @Router   /events/{id}/staff [get]
func handleListStaff(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		ids, err := svcs.Staff.ListStaff(c.Request.Context(), actorFrom(c), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		resp := StaffListResponse{EventID: eventID.String(), StaffIDs: make([]string, 0, len(ids))}
		for _, id := range ids {
			resp.StaffIDs = append(resp.StaffIDs, id.String())
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Assign staff to an event
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Param    req body  AssignStaffRequest true "payload"
// @Success  201
// @Failure  403 {object} ErrorResponse "admin only"
// @Failure  409 {object} ErrorResponse "already assigned"
// @Router   /events/{id}/staff [post]
func handleAssignStaff(svcs *service.Services, effects EffectSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req AssignStaffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		staffID, err := uuid.Parse(req.StaffID)
		if err != nil {
			badRequest(c, "invalid staff_id")
			return
		}
		eff, err := svcs.Staff.Assign(c.Request.Context(), actorFrom(c), eventID, staffID)
		if err != nil {
			respondErr(c, err)
			return
		}
		effects.Enqueue(eff)
		c.JSON(http.StatusCreated, domain.StaffAssignment{EventID: eventID, StaffID: staffID})
	}
}

// @Summary  Remove staff from an event
// @Security BearerAuth
// @Param    id       path  string  true  "Event ID (uuid)"
// @Param    staffId  path  string  true  "Staff user ID (uuid)"
// @Success  204
// @Router   /events/{id}/staff/{staffId} [delete]
func handleUnassignStaff(svcs *service.Services, effects EffectSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		staffID, ok := parseUUIDParam(c, "staffId")
		if !ok {
			return
		}
		eff, err := svcs.Staff.Unassign(c.Request.Context(), actorFrom(c), eventID, staffID)
		if err != nil {
			respondErr(c, err)
			return
		}
		effects.Enqueue(eff)
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Announcements of an event
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200 {array} domain.Announcement
// @Router   /events/{id}/announcements [get]
func handleListAnnouncements(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Announcement.List(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		if list == nil {
			list = []domain.Announcement{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Post an announcement
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID (uuid)"
// @Param    req body  CreateAnnouncementRequest true "payload"
// @Success  201 {object} domain.Announcement
// @Failure  403 {object} ErrorResponse
// @Router   /events/{id}/announcements [post]
func handleCreateAnnouncement(svcs *service.Services, effects EffectSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateAnnouncementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		a, eff, err := svcs.Announcement.Create(c.Request.Context(), actorFrom(c), announcement.Input{
			EventID:  eventID,
			Title:    req.Title,
			Content:  req.Content,
			Priority: domain.AnnouncementPriority(strings.ToUpper(strings.TrimSpace(req.Priority))),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		effects.Enqueue(eff)
		c.JSON(http.StatusCreated, a)
	}
}
