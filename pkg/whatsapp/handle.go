package whatsapp

import (
	"context"
	"time"
)

// Dialer loads or initialises the credential material stored in dir and
// returns a live connection for the device. The returned handle must start
// delivering events on Events() as soon as the connection attempt begins.
type Dialer interface {
	Dial(ctx context.Context, deviceID string, dir string) (Handle, error)
}

// Handle is the live protocol connection of one device. Only the Manager
// may call Logout or Close on it.
type Handle interface {
	Messenger

	Events() <-chan Event
	SaveCredentials(ctx context.Context) error
	IsOpen() bool
	Logout(ctx context.Context) error
	Close() error
}

// Messenger is the set of operations the HTTP layer delegates to a
// connected device.
type Messenger interface {
	SendText(ctx context.Context, to string, text string) (string, error)
	SendMedia(ctx context.Context, to string, media MediaMessage) (string, error)
	SendReaction(ctx context.Context, to string, messageID string, emoji string) (string, error)
	GroupCreate(ctx context.Context, name string, participants []string) (*GroupInfo, error)
	GroupUpdateParticipants(ctx context.Context, groupID string, participants []string, action ParticipantAction) ([]ParticipantResult, error)
	GroupMetadata(ctx context.Context, groupID string) (*GroupInfo, error)
	GroupLeave(ctx context.Context, groupID string) error
	ListChats(ctx context.Context) ([]Chat, error)
	ListGroups(ctx context.Context) ([]GroupInfo, error)
}

type ParticipantAction string

const (
	ParticipantAdd    ParticipantAction = "add"
	ParticipantRemove ParticipantAction = "remove"
)

type MediaMessage struct {
	ImageURL string
	Caption  string
	Footer   string
	Buttons  []Button
}

type GroupParticipant struct {
	JID          string `json:"jid"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

type GroupInfo struct {
	ID           string             `json:"id"`
	Subject      string             `json:"subject"`
	Description  string             `json:"description,omitempty"`
	Owner        string             `json:"owner,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	Announce     bool               `json:"announce"`
	Locked       bool               `json:"locked"`
	Participants []GroupParticipant `json:"participants"`
}

type ParticipantResult struct {
	JID   string `json:"jid"`
	Error int    `json:"error,omitempty"`
}

type Chat struct {
	JID     string `json:"jid"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}
