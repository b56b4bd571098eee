// Package notify publishes a best-effort "event saved" notice over
// NATS once an event finishes writing to disk. It is never on the
// detection hot path: a connection failure here must never delay or
// drop a save.
package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const subject = "falldetect.events.saved"

// savedMsg carries a per-publish notice id distinct from the on-disk
// event id, so subscribers can deduplicate redeliveries of the same
// event.
type savedMsg struct {
	NoticeID string `json:"notice_id"`
	EventID  string `json:"event_id"`
	CameraID string `json:"camera_id"`
	SavedAt  string `json:"saved_at"`
}

// Publisher publishes saved-event notices over a plain NATS
// connection (no JetStream: lost notifications are acceptable, the
// event itself is already durable on disk).
type Publisher struct {
	nc *nats.Conn
}

// Connect dials url. A nil *Publisher with a non-nil error is
// returned on failure; callers may treat notification as optional and
// proceed without one.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// NotifyEventSaved implements saver.Notifier. Failures are logged and
// swallowed.
func (p *Publisher) NotifyEventSaved(eventID, cameraID string) {
	if p == nil || p.nc == nil {
		return
	}
	msg := savedMsg{
		NoticeID: uuid.NewString(),
		EventID:  eventID,
		CameraID: cameraID,
		SavedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("marshal event-saved notification", "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Warn("publish event-saved notification", "error", err)
	}
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
