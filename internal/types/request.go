package types

import (
	"time"

	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

type RequestSendMessage struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type RequestButton struct {
	Type        string `json:"type"`
	Index       int    `json:"index"`
	DisplayText string `json:"displayText"`
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func (b RequestButton) Button() pkgWhatsApp.Button {
	return pkgWhatsApp.Button{
		Type:        pkgWhatsApp.ButtonType(b.Type),
		Index:       b.Index,
		DisplayText: b.DisplayText,
		ID:          b.ID,
		URL:         b.URL,
		PhoneNumber: b.PhoneNumber,
	}
}

type RequestSendButtonImage struct {
	Number   string          `json:"number"`
	Message  string          `json:"message"`
	ImageURL string          `json:"imageUrl"`
	Footer   string          `json:"footer"`
	Buttons  []RequestButton `json:"buttons"`
}

type RequestSendReaction struct {
	Number    string `json:"number"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type RequestCreateGroup struct {
	GroupName    string   `json:"groupName"`
	Participants []string `json:"participants"`
}

type RequestGroupParticipants struct {
	GroupID      string   `json:"groupId"`
	Participants []string `json:"participants"`
}

type RequestLeaveGroup struct {
	GroupID string `json:"groupId"`
}

type RequestIssueToken struct {
	DeviceID   string `json:"deviceId"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type ResponseQR struct {
	DeviceID string `json:"deviceId"`
	QRCode   string `json:"qrCode"`
}

type ResponseStatus struct {
	DeviceID    string             `json:"deviceId"`
	Status      pkgWhatsApp.Status `json:"status"`
	IsConnected bool               `json:"isConnected"`
}

type ResponseDevices struct {
	ConnectedDevices []string                 `json:"connectedDevices"`
	Devices          []pkgWhatsApp.DeviceInfo `json:"devices"`
}

type ResponseSent struct {
	MessageID string `json:"messageId"`
}

type ResponseGroupCreated struct {
	GroupID string                 `json:"groupId"`
	Group   *pkgWhatsApp.GroupInfo `json:"group"`
}

type ResponseParticipants struct {
	GroupID      string                          `json:"groupId"`
	Participants []pkgWhatsApp.ParticipantResult `json:"participants"`
}

type ResponseToken struct {
	DeviceID  string     `json:"deviceId"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type ResponseHealth struct {
	Devices        int                         `json:"devices"`
	ByStatus       map[pkgWhatsApp.Status]int  `json:"byStatus"`
	Journal        string                      `json:"journal"`
	WhatsAppWeb    pkgWhatsApp.WAVersionStatus `json:"whatsappWeb"`
	StoredSessions int                         `json:"storedSessions"`
}
