package whatsapp

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forPelevin/gomoji"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rivo/uniseg"
	"github.com/sunshineplan/imgconv"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/validation"
)

const (
	sessionFileName   = "session.db"
	eventBufferSize   = 64
	thumbnailWidth    = 72
	defaultMediaLimit = 16 << 20
)

type ClientConfig struct {
	LogLevel          string
	ProxyURL          string
	MediaFetchTimeout time.Duration
	MediaMaxBytes     int64
	// MediaAllowPrivateNetwork lets image URLs point at local or private
	// addresses.
	MediaAllowPrivateNetwork bool
}

func newMediaHTTPClient(cfg ClientConfig) *http.Client {
	client := &http.Client{Timeout: cfg.MediaFetchTimeout}
	if !cfg.MediaAllowPrivateNetwork {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   validation.DenyPrivateDial,
		}).DialContext
		client.Transport = transport
	}
	return client
}

// WhatsmeowDialer opens one sqlite session store per device directory and
// connects a whatsmeow client on top of it.
type WhatsmeowDialer struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewWhatsmeowDialer(cfg ClientConfig) *WhatsmeowDialer {
	if cfg.MediaFetchTimeout <= 0 {
		cfg.MediaFetchTimeout = 30 * time.Second
	}
	if cfg.MediaMaxBytes <= 0 {
		cfg.MediaMaxBytes = defaultMediaLimit
	}

	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	return &WhatsmeowDialer{
		cfg:        cfg,
		httpClient: newMediaHTTPClient(cfg),
	}
}

func sessionDSN(dir string) string {
	return "file:" + filepath.Join(dir, sessionFileName) + "?_foreign_keys=on"
}

func (d *WhatsmeowDialer) Dial(ctx context.Context, deviceID string, dir string) (Handle, error) {
	db, err := sql.Open("sqlite3", sessionDSN(dir))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", log.WhatsApp("Database", d.cfg.LogLevel))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, log.WhatsApp("Client", d.cfg.LogLevel).Sub(deviceID))
	// reconnects are owned by the Manager
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true
	if d.cfg.ProxyURL != "" {
		if err := client.SetProxyAddress(d.cfg.ProxyURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	c := &waHandle{
		deviceID:   deviceID,
		client:     client,
		db:         db,
		cfg:        d.cfg,
		httpClient: d.httpClient,
		events:     make(chan Event, eventBufferSize),
	}
	client.AddEventHandler(c.handleEvent)

	if device.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			c.Close()
			return nil, fmt.Errorf("open QR channel: %w", err)
		}
		c.cancelQR = cancel
		go c.watchQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return c, nil
}

type waHandle struct {
	deviceID   string
	client     *whatsmeow.Client
	db         *sql.DB
	cfg        ClientConfig
	httpClient *http.Client
	cancelQR   context.CancelFunc

	mu     sync.Mutex
	closed bool
	events chan Event
}

func (c *waHandle) push(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		log.Device(c.deviceID).Warn("Event buffer full, dropping " + evt.Kind.String())
	}
}

func (c *waHandle) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.push(OpenEvent())
	case *events.PairSuccess:
		log.Device(c.deviceID).Info("Paired as " + e.ID.String())
		c.push(CredentialsEvent())
	case *events.LoggedOut:
		c.push(CloseEvent(CloseLoggedOut, e.Reason.String()))
	case *events.ConnectFailure:
		code := int(e.Reason)
		if e.Reason.IsLoggedOut() {
			code = CloseLoggedOut
		}
		c.push(CloseEvent(code, e.Message))
	case *events.StreamReplaced:
		c.push(CloseEvent(CloseConnectionReplaced, "stream replaced"))
	case *events.TemporaryBan:
		c.push(CloseEvent(CloseForbidden, fmt.Sprintf("temporary ban %s, expires in %s", e.Code, e.Expire)))
	case *events.ClientOutdated:
		c.push(CloseEvent(CloseOutdated, "client outdated"))
	case *events.Disconnected:
		c.push(CloseEvent(CloseConnectionClosed, "connection closed"))
	case *events.KeepAliveTimeout:
		log.Device(c.deviceID).Warn(fmt.Sprintf("Keepalive timeout, errors=%d, lastSuccess=%s",
			e.ErrorCount, e.LastSuccess.Format(time.RFC3339)))
	case *events.KeepAliveRestored:
		log.Device(c.deviceID).Info("Keepalive restored")
	}
}

func (c *waHandle) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.push(QREvent(item.Code))
		case whatsmeow.QRChannelSuccess.Event:
			// Connected follows once the post-pairing restart completes
		case whatsmeow.QRChannelTimeout.Event:
			c.push(CloseEvent(CloseConnectionLost, "QR scan timed out"))
		case whatsmeow.QRChannelClientOutdated.Event:
			c.push(CloseEvent(CloseOutdated, "client outdated"))
		case "error":
			msg := "QR pairing failed"
			if item.Error != nil {
				msg = item.Error.Error()
			}
			c.push(CloseEvent(CloseBadSession, msg))
		default:
			c.push(CloseEvent(CloseBadSession, "QR channel: "+item.Event))
		}
	}
}

func (c *waHandle) Events() <-chan Event {
	return c.events
}

func (c *waHandle) SaveCredentials(ctx context.Context) error {
	if c.client.Store.ID == nil {
		return nil
	}
	return c.client.Store.Save(ctx)
}

func (c *waHandle) IsOpen() bool {
	return c.client.IsConnected()
}

func (c *waHandle) Logout(ctx context.Context) error {
	return c.client.Logout(ctx)
}

func (c *waHandle) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	if c.cancelQR != nil {
		c.cancelQR()
	}
	c.client.RemoveEventHandlers()
	c.client.Disconnect()
	return c.db.Close()
}

func (c *waHandle) ready() error {
	if !c.client.IsConnected() || !c.client.IsLoggedIn() {
		return ErrNotConnected
	}
	return nil
}

func (c *waHandle) send(ctx context.Context, op string, to types.JID, msg *waE2E.Message) (string, error) {
	extra := whatsmeow.SendRequestExtra{ID: c.client.GenerateMessageID()}
	if _, err := c.client.SendMessage(ctx, to, msg, extra); err != nil {
		return "", upstream(op, err)
	}
	return extra.ID, nil
}

func (c *waHandle) SendText(ctx context.Context, to string, text string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	jid, err := WhatsAppComposeJID(to)
	if err != nil {
		return "", err
	}
	return c.send(ctx, "send message", jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
}

func (c *waHandle) fetchMedia(ctx context.Context, url string) ([]byte, string, error) {
	if err := validation.ValidateOutboundURL(url, c.cfg.MediaAllowPrivateNetwork, false); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMediaURLNotAllowed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, validation.ErrPrivateNetwork) {
			return nil, "", fmt.Errorf("%w: %v", ErrMediaURLNotAllowed, err)
		}
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MediaMaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > c.cfg.MediaMaxBytes {
		return nil, "", ErrMediaTooLarge
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func imageThumbnail(image []byte) ([]byte, error) {
	decoded, err := imgconv.Decode(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	err = imgconv.Write(&buf,
		imgconv.Resize(decoded, &imgconv.ResizeOption{Width: thumbnailWidth}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *waHandle) SendMedia(ctx context.Context, to string, media MediaMessage) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	jid, err := WhatsAppComposeJID(to)
	if err != nil {
		return "", err
	}

	image, mimeType, err := c.fetchMedia(ctx, media.ImageURL)
	if err != nil {
		if errors.Is(err, ErrMediaTooLarge) || errors.Is(err, ErrMediaURLNotAllowed) {
			return "", err
		}
		return "", upstream("fetch image", err)
	}
	thumb, err := imageThumbnail(image)
	if err != nil {
		return "", upstream("thumbnail", err)
	}

	uploaded, err := c.client.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		return "", upstream("upload image", err)
	}
	thumbUploaded, err := c.client.Upload(ctx, thumb, whatsmeow.MediaLinkThumbnail)
	if err != nil {
		return "", upstream("upload thumbnail", err)
	}

	return c.send(ctx, "send image", jid, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:                 proto.String(uploaded.URL),
			DirectPath:          proto.String(uploaded.DirectPath),
			Mimetype:            proto.String(mimeType),
			Caption:             proto.String(RenderCaption(media.Caption, media.Footer, media.Buttons)),
			FileLength:          proto.Uint64(uploaded.FileLength),
			FileSHA256:          uploaded.FileSHA256,
			FileEncSHA256:       uploaded.FileEncSHA256,
			MediaKey:            uploaded.MediaKey,
			JPEGThumbnail:       thumb,
			ThumbnailDirectPath: proto.String(thumbUploaded.DirectPath),
			ThumbnailSHA256:     thumbUploaded.FileSHA256,
			ThumbnailEncSHA256:  thumbUploaded.FileEncSHA256,
		},
	})
}

// ValidateReactionEmoji accepts a single emoji grapheme, or "" which removes
// an earlier reaction.
func ValidateReactionEmoji(emoji string) error {
	if emoji == "" {
		return nil
	}
	if !gomoji.ContainsEmoji(emoji) || uniseg.GraphemeClusterCount(emoji) != 1 {
		return ErrInvalidEmoji
	}
	return nil
}

func (c *waHandle) SendReaction(ctx context.Context, to string, messageID string, emoji string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if err := ValidateReactionEmoji(emoji); err != nil {
		return "", err
	}
	jid, err := WhatsAppComposeJID(to)
	if err != nil {
		return "", err
	}
	return c.send(ctx, "send reaction", jid, &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key: &waCommon.MessageKey{
				FromMe:    proto.Bool(true),
				ID:        proto.String(messageID),
				RemoteJID: proto.String(jid.String()),
			},
			Text:              proto.String(emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	})
}

func (c *waHandle) GroupCreate(ctx context.Context, name string, participants []string) (*GroupInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	jids, err := composeUserJIDs(participants)
	if err != nil {
		return nil, err
	}
	group, err := c.client.CreateGroup(ctx, whatsmeow.ReqCreateGroup{
		Name:         name,
		Participants: jids,
	})
	if err != nil {
		return nil, upstream("create group", err)
	}
	info := convertGroupInfo(group)
	return &info, nil
}

func (c *waHandle) GroupUpdateParticipants(ctx context.Context, groupID string, participants []string, action ParticipantAction) ([]ParticipantResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	groupJID, err := WhatsAppComposeGroupJID(groupID)
	if err != nil {
		return nil, err
	}
	jids, err := composeUserJIDs(participants)
	if err != nil {
		return nil, err
	}

	change := whatsmeow.ParticipantChangeAdd
	if action == ParticipantRemove {
		change = whatsmeow.ParticipantChangeRemove
	}
	result, err := c.client.UpdateGroupParticipants(ctx, groupJID, jids, change)
	if err != nil {
		return nil, upstream(string(action)+" participants", err)
	}
	return convertParticipantResults(result), nil
}

func (c *waHandle) GroupMetadata(ctx context.Context, groupID string) (*GroupInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	groupJID, err := WhatsAppComposeGroupJID(groupID)
	if err != nil {
		return nil, err
	}
	group, err := c.client.GetGroupInfo(ctx, groupJID)
	if err != nil {
		return nil, upstream("group metadata", err)
	}
	info := convertGroupInfo(group)
	return &info, nil
}

func (c *waHandle) GroupLeave(ctx context.Context, groupID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	groupJID, err := WhatsAppComposeGroupJID(groupID)
	if err != nil {
		return err
	}
	return upstream("leave group", c.client.LeaveGroup(ctx, groupJID))
}

func (c *waHandle) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	groups, err := c.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, upstream("list groups", err)
	}
	return convertGroups(groups), nil
}

// ListChats merges joined groups with the contact store. whatsmeow keeps no
// chat list of its own.
func (c *waHandle) ListChats(ctx context.Context) ([]Chat, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	groups, err := c.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, upstream("list chats", err)
	}
	contacts, err := c.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, upstream("list chats", err)
	}

	chats := make([]Chat, 0, len(groups)+len(contacts))
	for _, g := range groups {
		chats = append(chats, Chat{JID: g.JID.String(), Name: g.Name, IsGroup: true})
	}
	for jid, info := range contacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		if name == "" {
			name = info.BusinessName
		}
		chats = append(chats, Chat{JID: jid.String(), Name: name})
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].IsGroup != chats[j].IsGroup {
			return chats[i].IsGroup
		}
		return chats[i].JID < chats[j].JID
	})
	return chats, nil
}
