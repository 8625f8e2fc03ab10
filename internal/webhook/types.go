package webhook

import (
	"time"

	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

type EventType string

const (
	EventConnectionConnecting     EventType = "connection.connecting"
	EventConnectionWaitingForScan EventType = "connection.waiting_for_scan"
	EventConnectionConnected      EventType = "connection.connected"
	EventConnectionDisconnected   EventType = "connection.disconnected"
	EventConnectionSessionExpired EventType = "connection.session_expired"
	EventConnectionLoggedOut      EventType = "connection.logged_out"
)

var statusEvents = map[pkgWhatsApp.Status]EventType{
	pkgWhatsApp.StatusConnecting:     EventConnectionConnecting,
	pkgWhatsApp.StatusWaitingForScan: EventConnectionWaitingForScan,
	pkgWhatsApp.StatusConnected:      EventConnectionConnected,
	pkgWhatsApp.StatusDisconnected:   EventConnectionDisconnected,
	pkgWhatsApp.StatusSessionExpired: EventConnectionSessionExpired,
	pkgWhatsApp.StatusLoggedOut:      EventConnectionLoggedOut,
}

type WebhookEvent struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	DeviceID  string                 `json:"device_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventFromEntry converts a journal entry into the payload delivered to
// subscribers. Unknown statuses yield false.
func EventFromEntry(entry pkgWhatsApp.StatusEntry) (WebhookEvent, bool) {
	eventType, ok := statusEvents[entry.Status]
	if !ok {
		return WebhookEvent{}, false
	}
	evt := WebhookEvent{
		ID:        entry.ID,
		EventType: eventType,
		DeviceID:  entry.DeviceID,
		Timestamp: entry.CreatedAt,
	}
	if entry.Reason != "" {
		evt.Data = map[string]interface{}{"reason": entry.Reason}
	}
	return evt, true
}
