package whatsapp

import (
	"fmt"
)

type EventKind int

const (
	EventCredentials EventKind = iota + 1
	EventQR
	EventOpen
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventCredentials:
		return "credentials"
	case EventQR:
		return "qr"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Close codes follow the numbering used by WhatsApp web clients.
const (
	CloseLoggedOut          = 401
	CloseForbidden          = 403
	CloseOutdated           = 405
	CloseConnectionLost     = 408
	CloseConnectionClosed   = 428
	CloseConnectionReplaced = 440
	CloseBadSession         = 500
	CloseRestartRequired    = 515
)

type CloseReason struct {
	Code    int
	Message string
}

// IsAuthFailure reports whether the remote side invalidated the session.
func (r CloseReason) IsAuthFailure() bool {
	return r.Code == CloseLoggedOut
}

func (r CloseReason) String() string {
	if r.Message == "" {
		return fmt.Sprintf("%d", r.Code)
	}
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

// Event is one connection-state notification for a single device.
// QR is set for EventQR, Reason for EventClose.
type Event struct {
	Kind   EventKind
	QR     string
	Reason CloseReason
}

func QREvent(code string) Event {
	return Event{Kind: EventQR, QR: code}
}

func OpenEvent() Event {
	return Event{Kind: EventOpen}
}

func CloseEvent(code int, message string) Event {
	return Event{Kind: EventClose, Reason: CloseReason{Code: code, Message: message}}
}

func CredentialsEvent() Event {
	return Event{Kind: EventCredentials}
}
