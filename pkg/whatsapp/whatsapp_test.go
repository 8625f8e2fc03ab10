package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func newEventHandle() *waHandle {
	return &waHandle{deviceID: "alice", events: make(chan Event, 8)}
}

func drainEvents(h *waHandle) []Event {
	var out []Event
	for {
		select {
		case evt := <-h.events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestHandleEventMapping(t *testing.T) {
	cases := []struct {
		name     string
		evt      interface{}
		kind     EventKind
		code     int
		authFail bool
	}{
		{"connected", &events.Connected{}, EventOpen, 0, false},
		{"pair success", &events.PairSuccess{ID: types.NewJID("6281234567890", types.DefaultUserServer)}, EventCredentials, 0, false},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, EventClose, CloseLoggedOut, true},
		{"main device gone", &events.ConnectFailure{Reason: events.ConnectFailureMainDeviceGone}, EventClose, CloseLoggedOut, true},
		{"unknown logout", &events.ConnectFailure{Reason: events.ConnectFailureUnknownLogout}, EventClose, CloseLoggedOut, true},
		{"service unavailable", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, EventClose, 503, false},
		{"stream replaced", &events.StreamReplaced{}, EventClose, CloseConnectionReplaced, false},
		{"temporary ban", &events.TemporaryBan{Expire: time.Hour}, EventClose, CloseForbidden, false},
		{"client outdated", &events.ClientOutdated{}, EventClose, CloseOutdated, false},
		{"disconnected", &events.Disconnected{}, EventClose, CloseConnectionClosed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newEventHandle()
			h.handleEvent(tc.evt)

			got := drainEvents(h)
			if len(got) != 1 {
				t.Fatalf("events = %+v, want exactly one", got)
			}
			if got[0].Kind != tc.kind {
				t.Errorf("kind = %s, want %s", got[0].Kind, tc.kind)
			}
			if tc.kind != EventClose {
				return
			}
			if got[0].Reason.Code != tc.code {
				t.Errorf("code = %d, want %d", got[0].Reason.Code, tc.code)
			}
			if got[0].Reason.IsAuthFailure() != tc.authFail {
				t.Errorf("IsAuthFailure = %v, want %v", got[0].Reason.IsAuthFailure(), tc.authFail)
			}
		})
	}
}

func TestHandleEventIgnoresKeepAlive(t *testing.T) {
	h := newEventHandle()
	h.handleEvent(&events.KeepAliveTimeout{ErrorCount: 2, LastSuccess: time.Now()})
	h.handleEvent(&events.KeepAliveRestored{})
	h.handleEvent(&events.Message{})

	if got := drainEvents(h); len(got) != 0 {
		t.Errorf("events = %+v, want none", got)
	}
}

func TestWatchQRMapping(t *testing.T) {
	items := make(chan whatsmeow.QRChannelItem, 8)
	items <- whatsmeow.QRChannelItem{Event: "code", Code: "2@first"}
	items <- whatsmeow.QRChannelItem{Event: "code", Code: "2@second"}
	items <- whatsmeow.QRChannelSuccess
	items <- whatsmeow.QRChannelTimeout
	items <- whatsmeow.QRChannelClientOutdated
	items <- whatsmeow.QRChannelItem{Event: "error", Error: errors.New("pair rejected")}
	items <- whatsmeow.QRChannelItem{Event: "err-unexpected-state"}
	close(items)

	h := newEventHandle()
	h.watchQR(items)
	got := drainEvents(h)

	want := []Event{
		QREvent("2@first"),
		QREvent("2@second"),
		CloseEvent(CloseConnectionLost, "QR scan timed out"),
		CloseEvent(CloseOutdated, "client outdated"),
		CloseEvent(CloseBadSession, "pair rejected"),
		CloseEvent(CloseBadSession, "QR channel: err-unexpected-state"),
	}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	for _, evt := range got {
		if evt.Kind == EventClose && evt.Reason.IsAuthFailure() {
			t.Errorf("QR channel item %+v must not expire the session", evt)
		}
	}
}

func TestPushAfterCloseDropsEvent(t *testing.T) {
	h := newEventHandle()
	h.closed = true
	h.handleEvent(&events.Connected{})

	if got := drainEvents(h); len(got) != 0 {
		t.Errorf("events = %+v, want none after close", got)
	}
}

func TestFetchMediaPrivateNetworkGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = w.Write([]byte("not really a png"))
	}))
	defer srv.Close()

	guarded := ClientConfig{MediaFetchTimeout: time.Second, MediaMaxBytes: 1 << 10}
	h := &waHandle{deviceID: "alice", cfg: guarded, httpClient: newMediaHTTPClient(guarded)}
	if _, _, err := h.fetchMedia(context.Background(), srv.URL+"/a.png"); !errors.Is(err, ErrMediaURLNotAllowed) {
		t.Fatalf("err = %v, want ErrMediaURLNotAllowed", err)
	}

	open := guarded
	open.MediaAllowPrivateNetwork = true
	h = &waHandle{deviceID: "alice", cfg: open, httpClient: newMediaHTTPClient(open)}
	data, mimeType, err := h.fetchMedia(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("fetchMedia: %v", err)
	}
	if string(data) != "not really a png" || mimeType != "image/png" {
		t.Errorf("got %q %q", data, mimeType)
	}

	open.MediaMaxBytes = 4
	h = &waHandle{deviceID: "alice", cfg: open, httpClient: newMediaHTTPClient(open)}
	if _, _, err := h.fetchMedia(context.Background(), srv.URL+"/a.png"); !errors.Is(err, ErrMediaTooLarge) {
		t.Errorf("err = %v, want ErrMediaTooLarge", err)
	}
}
