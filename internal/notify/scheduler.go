// Package notify schedules expiry warnings and delivers them as web push
// notifications when they fall due.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/pantry/internal/apperr"
	"github.com/dukerupert/pantry/internal/expiry"
	"github.com/dukerupert/pantry/internal/model"
)

const (
	// WarningLead is how far ahead of the expiry date the warning fires.
	WarningLead = 2
	// WarningHour is the local hour of day the warning fires.
	WarningHour = 9

	warningTitle = "Expiring soon"
)

// Facility accepts one-shot alerts for later delivery.
type Facility interface {
	Schedule(ctx context.Context, a model.Alert) error
}

// AlertQueue is the persistent backing of QueueFacility.
type AlertQueue interface {
	Enqueue(ctx context.Context, a model.Alert) (bool, error)
}

// QueueFacility stores alerts in a queue for the Dispatcher to pick up.
type QueueFacility struct {
	queue AlertQueue
}

func NewQueueFacility(queue AlertQueue) *QueueFacility {
	return &QueueFacility{queue: queue}
}

func (f *QueueFacility) Schedule(ctx context.Context, a model.Alert) error {
	_, err := f.queue.Enqueue(ctx, a)
	return err
}

// Observer receives scheduling and delivery outcomes; it may be nil.
type Observer interface {
	NotificationResult(outcome string)
}

type Config struct {
	// Location is the time zone the 09:00 fire time is expressed in.
	Location *time.Location
	// Dedupe makes scheduling idempotent per (tenant, code, expiry).
	Dedupe bool
	Now    func() time.Time
}

// Scheduler computes expiry warning times and hands them to a Facility.
type Scheduler struct {
	facility Facility
	loc      *time.Location
	dedupe   bool
	now      func() time.Time
	observer Observer
	logger   *slog.Logger
}

func NewScheduler(facility Facility, cfg Config, observer Observer, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		facility: facility,
		loc:      cfg.Location,
		dedupe:   cfg.Dedupe,
		now:      cfg.Now,
		observer: observer,
		logger:   logger,
	}
}

// AlertTime returns 09:00 local time two days before the expiry date.
func (s *Scheduler) AlertTime(exp time.Time) time.Time {
	y, m, d := exp.Date()
	return time.Date(y, m, d-WarningLead, WarningHour, 0, 0, 0, s.loc)
}

// ScheduleExpiryWarning queues a warning for an item. It never fails the
// caller: problems are logged and counted. A warning whose time has already
// passed is skipped.
func (s *Scheduler) ScheduleExpiryWarning(ctx context.Context, tenantID, code, itemName, expiryText string) {
	exp, err := expiry.ParseDate(expiryText)
	if err != nil {
		s.fail(apperr.Notification("parse expiry", err), tenantID, code)
		return
	}

	fireAt := s.AlertTime(exp)
	now := s.now()
	if !fireAt.After(now) {
		s.logger.Debug("expiry warning in the past, skipping", "tenant", tenantID, "code", code, "fire_at", fireAt)
		s.observe("skipped")
		return
	}

	alert := model.Alert{
		TenantID:  tenantID,
		Title:     warningTitle,
		Body:      fmt.Sprintf("\"%s\" expires in %d days.", itemName, WarningLead),
		FireAt:    fireAt,
		CreatedAt: now,
	}
	if s.dedupe {
		key := tenantID + "|" + code + "|" + expiryText
		alert.DedupeKey = &key
	}

	if err := s.facility.Schedule(ctx, alert); err != nil {
		s.fail(apperr.Notification("schedule", err), tenantID, code)
		return
	}
	s.observe("scheduled")
}

func (s *Scheduler) fail(err error, tenantID, code string) {
	s.logger.Warn("expiry warning not scheduled", "tenant", tenantID, "code", code, "error", err)
	s.observe("failed")
}

func (s *Scheduler) observe(outcome string) {
	if s.observer != nil {
		s.observer.NotificationResult(outcome)
	}
}
