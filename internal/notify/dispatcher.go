package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

const dispatchBatch = 100

// DueAlerts is the queue side the Dispatcher drains.
type DueAlerts interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Alert, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
}

// Subscriptions lists and prunes push endpoints.
type Subscriptions interface {
	ListByTenant(ctx context.Context, tenantID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Dispatcher periodically delivers due alerts to every push subscription of
// the alert's tenant.
type Dispatcher struct {
	mu       sync.RWMutex
	sender   Sender
	alerts   DueAlerts
	subs     Subscriptions
	interval time.Duration
	now      func() time.Time
	observer Observer
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDispatcher(sender Sender, alerts DueAlerts, subs Subscriptions, interval time.Duration, observer Observer, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Dispatcher{
		sender:   sender,
		alerts:   alerts,
		subs:     subs,
		interval: interval,
		now:      time.Now,
		observer: observer,
		logger:   logger,
	}
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.RunOnce(ctx); err != nil {
					d.logger.Error("dispatch alerts", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the dispatcher.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce delivers every alert that is due and returns how many were
// processed. An alert is marked sent once it has been offered to all of the
// tenant's subscriptions, whether or not any accepted it.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.alerts.ListDue(ctx, now, dispatchBatch)
	if err != nil {
		return 0, err
	}

	subsByTenant := make(map[string][]model.PushSubscription)
	for _, a := range due {
		subs, ok := subsByTenant[a.TenantID]
		if !ok {
			subs, err = d.subs.ListByTenant(ctx, a.TenantID)
			if err != nil {
				d.logger.Error("list subscriptions", "tenant", a.TenantID, "error", err)
				continue
			}
			subsByTenant[a.TenantID] = subs
		}

		payload := Payload{
			Title: a.Title,
			Body:  a.Body,
			URL:   "/",
			Tag:   "expiry",
		}
		live := subs[:0:0]
		for i := range subs {
			err := d.sender.Send(ctx, &subs[i], payload)
			switch {
			case err == nil:
				live = append(live, subs[i])
				d.observe("delivered")
			case errors.Is(err, ErrExpired):
				if err := d.subs.DeleteByEndpoint(ctx, subs[i].Endpoint); err != nil {
					d.logger.Warn("remove expired subscription", "endpoint", subs[i].Endpoint, "error", err)
				}
				d.observe("expired")
			default:
				live = append(live, subs[i])
				d.logger.Warn("send expiry alert", "tenant", a.TenantID, "alert", a.ID, "error", err)
				d.observe("send_failed")
			}
		}
		subsByTenant[a.TenantID] = live

		if err := d.alerts.MarkSent(ctx, a.ID, now); err != nil {
			d.logger.Error("mark alert sent", "alert", a.ID, "error", err)
		}
	}
	return len(due), nil
}

func (d *Dispatcher) observe(outcome string) {
	if d.observer != nil {
		d.observer.NotificationResult(outcome)
	}
}
