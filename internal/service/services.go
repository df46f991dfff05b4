package service

import (
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/service/announcement"
	"github.com/kirinyoku/campusgo/internal/service/checkin"
	"github.com/kirinyoku/campusgo/internal/service/query"
	"github.com/kirinyoku/campusgo/internal/service/registration"
	"github.com/kirinyoku/campusgo/internal/service/reminder"
	"github.com/kirinyoku/campusgo/internal/service/staff"
	"github.com/kirinyoku/campusgo/internal/uow"
)

type Services struct {
	Registration *registration.Service
	CheckIn      *checkin.Service
	Staff        *staff.Service
	Announcement *announcement.Service
	Reminder     *reminder.Service
	Query        *query.Service
}

type Config struct {
	Registration registration.Config
	CheckIn      checkin.Config
	Reminder     reminder.Config
	Query        query.Config
}

// NewServices wires every service to one unit-of-work runner. cache may be
// nil; claims must not be.
func NewServices(
	tx uow.Runner,
	cache *redisrepo.Cache,
	claims reminder.Claimer,
	cfg Config,
) *Services {
	return &Services{
		Registration: registration.New(tx, cfg.Registration),
		CheckIn:      checkin.New(tx, cfg.CheckIn),
		Staff:        staff.New(tx),
		Announcement: announcement.New(tx, cache),
		Reminder:     reminder.New(tx, claims, cfg.Reminder),
		Query:        query.New(tx, cache, cfg.Query),
	}
}
