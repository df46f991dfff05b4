package httpgin

import (
	"github.com/kirinyoku/campusgo/internal/domain"
)

type RegisterRequest struct {
	EventID string `json:"event_id" binding:"required,uuid"`
}

// Code is validated by the check-in service so that a blank code is
// reported like any other unknown code.
type CheckInRequest struct {
	Code   string `json:"code"`
	Method string `json:"method"`
}

type ManualCheckInRequest struct {
	Code string `json:"code"`
}

type AssignStaffRequest struct {
	StaffID string `json:"staff_id" binding:"required,uuid"`
}

type CreateAnnouncementRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Priority string `json:"priority"`
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}

type RegistrationResponse struct {
	Registration domain.Registration `json:"registration"`
}

type CheckInResponse struct {
	CheckIn domain.CheckIn `json:"check_in"`
}

type StaffListResponse struct {
	EventID  string   `json:"event_id"`
	StaffIDs []string `json:"staff_ids"`
}
