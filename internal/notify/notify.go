package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Package notify delivers best-effort notifications to portal contacts.
// Delivery failures are logged and swallowed: a bounced email never fails
// the operation that triggered it.

// Notification is one outbound message.
type Notification struct {
	To       string
	Kind     string
	Subject  string
	PortalID string
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications as JSON log lines instead of delivering
// them. It stands in for a mail provider in development.
type LogSender struct {
	Location *time.Location
}

// NewLogSender creates a LogSender. loc may be nil for UTC.
func NewLogSender(loc *time.Location) *LogSender {
	if loc == nil {
		loc = time.UTC
	}
	return &LogSender{Location: loc}
}

var _ Sender = (*LogSender)(nil)

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	b, err := json.Marshal(map[string]any{
		"ts":        time.Now().In(s.Location).Format(time.RFC3339Nano),
		"level":     "info",
		"component": "notify",
		"event":     "notification_send",
		"kind":      n.Kind,
		"to":        n.To,
		"subject":   n.Subject,
		"portal_id": n.PortalID,
	})
	if err != nil {
		return err
	}
	log.SetFlags(0)
	log.Println(string(b))
	return nil
}
