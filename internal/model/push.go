package model

import "time"

type PushSubscription struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	TenantID   string    `json:"tenant_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Alert is a one-shot notification waiting for its fire time.
type Alert struct {
	ID        int64      `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	FireAt    time.Time  `json:"fire_at"`
	DedupeKey *string    `json:"dedupe_key,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
