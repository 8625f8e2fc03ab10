package whatsapp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeHandle struct {
	Messenger

	mu     sync.Mutex
	events chan Event
	ended  bool
	open   bool
	saved  int
	calls  []string
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan Event, 16)}
}

func (h *fakeHandle) emit(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	if evt.Kind == EventOpen {
		h.open = true
	}
	h.events <- evt
}

// endStream closes the event channel without a close event.
func (h *fakeHandle) endStream() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ended {
		h.ended = true
		close(h.events)
	}
}

func (h *fakeHandle) Events() <-chan Event { return h.events }

func (h *fakeHandle) SaveCredentials(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved++
	return nil
}

func (h *fakeHandle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *fakeHandle) Logout(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "logout")
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "close")
	h.open = false
	if !h.ended {
		h.ended = true
		close(h.events)
	}
	return nil
}

func (h *fakeHandle) callLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHandle) savedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saved
}

type fakeDialer struct {
	mu       sync.Mutex
	handles  map[string][]*fakeHandle
	fail     map[string]error
	attempts map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		handles:  map[string][]*fakeHandle{},
		fail:     map[string]error{},
		attempts: map[string]int{},
	}
}

func (d *fakeDialer) Dial(_ context.Context, deviceID string, dir string) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[deviceID]++
	if err := d.fail[deviceID]; err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	h := newFakeHandle()
	d.handles[deviceID] = append(d.handles[deviceID], h)
	return h, nil
}

func (d *fakeDialer) failWith(deviceID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[deviceID] = err
}

func (d *fakeDialer) attemptCount(deviceID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[deviceID]
}

func (d *fakeDialer) dials(deviceID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles[deviceID])
}

func (d *fakeDialer) latest(deviceID string) *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	hs := d.handles[deviceID]
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T) (*Manager, *fakeDialer, *CredentialStore) {
	t.Helper()
	creds, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dialer := newFakeDialer()
	m := NewManager(ManagerConfig{
		ReconnectDelay: 20 * time.Millisecond,
		QRPollInterval: 5 * time.Millisecond,
		QRPollAttempts: 40,
	}, NewRegistry(), creds, dialer, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, dialer, creds
}

func statusIs(m *Manager, id string, want Status) func() bool {
	return func() bool {
		got, ok := m.GetStatus(id)
		return ok && got == want
	}
}

func TestConnectInsertsConnectingRecord(t *testing.T) {
	m, dialer, creds := newTestManager(t)

	h, err := m.Connect(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if h == nil {
		t.Fatal("nil handle")
	}
	if st, ok := m.GetStatus("alice"); !ok || st != StatusConnecting {
		t.Errorf("status = %q, %v; want connecting", st, ok)
	}
	if !creds.Exists("alice") {
		t.Error("credential dir not created")
	}
	if _, err := m.GetHandle("alice"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("GetHandle err = %v, want ErrNotConnected", err)
	}

	again, err := m.Connect(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if again != h || dialer.dials("alice") != 1 {
		t.Error("second Connect should reuse the live handle")
	}
}

func TestConnectConcurrentDialsOnce(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Connect(context.Background(), "alice"); err != nil {
				t.Errorf("Connect: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := dialer.dials("alice"); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestConnectRejectsUnsafeID(t *testing.T) {
	m, _, _ := newTestManager(t)
	for _, id := range []string{"", "../etc", "a/b", ".hidden"} {
		if _, err := m.Connect(context.Background(), id); !errors.Is(err, ErrInvalidDeviceID) {
			t.Errorf("Connect(%q) err = %v, want ErrInvalidDeviceID", id, err)
		}
	}
}

func TestConnectDialFailure(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	dialer.fail["alice"] = errors.New("store corrupted")

	if _, err := m.Connect(context.Background(), "alice"); err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := m.GetStatus("alice"); ok {
		t.Error("failed connect left a record")
	}
}

func TestQREventMovesToWaitingForScan(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		dialer.latest("alice").emit(QREvent("2@abc"))
	}()

	qr, err := m.WaitForQR(context.Background(), "alice")
	if err != nil {
		t.Fatalf("WaitForQR: %v", err)
	}
	if qr != "2@abc" {
		t.Errorf("qr = %q", qr)
	}
	if st, _ := m.GetStatus("alice"); st != StatusWaitingForScan {
		t.Errorf("status = %q, want waiting_for_scan", st)
	}
}

func TestWaitForQRConnectsAbsentDevice(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	go func() {
		for dialer.dials("bob") == 0 {
			time.Sleep(time.Millisecond)
		}
		dialer.latest("bob").emit(QREvent("2@bob"))
	}()

	qr, err := m.WaitForQR(context.Background(), "bob")
	if err != nil {
		t.Fatalf("WaitForQR: %v", err)
	}
	if qr != "2@bob" {
		t.Errorf("qr = %q", qr)
	}
}

func TestOpenClearsQRAndConnects(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	h := dialer.latest("alice")
	h.emit(QREvent("2@abc"))
	eventually(t, "waiting_for_scan", statusIs(m, "alice", StatusWaitingForScan))

	h.emit(CredentialsEvent())
	h.emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	if _, ok := m.Registry().GetQR("alice"); ok {
		t.Error("QR still pending after open")
	}
	if got, err := m.GetHandle("alice"); err != nil || got != h {
		t.Errorf("GetHandle = %v, %v", got, err)
	}
	if h.savedCount() != 1 {
		t.Errorf("credentials saved %d times, want 1", h.savedCount())
	}
	if _, err := m.WaitForQR(context.Background(), "alice"); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("WaitForQR err = %v, want ErrAlreadyConnected", err)
	}
}

func TestWaitForQRTimeout(t *testing.T) {
	m, _, _ := newTestManager(t)

	start := time.Now()
	_, err := m.WaitForQR(context.Background(), "alice")
	if !errors.Is(err, ErrQRTimeout) {
		t.Fatalf("err = %v, want ErrQRTimeout", err)
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrAlreadyConnected) {
		t.Error("QR timeout must be distinguishable")
	}
	if !strings.Contains(err.Error(), "pairing in progress") || strings.Contains(err.Error(), "connected") {
		t.Errorf("timeout message %q should say pairing is still in progress", err.Error())
	}
	if time.Since(start) < 40*5*time.Millisecond {
		t.Error("returned before the poll attempts were exhausted")
	}
}

func TestWaitForQRConnectedWhileWaiting(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		dialer.latest("alice").emit(OpenEvent())
	}()

	if _, err := m.WaitForQR(context.Background(), "alice"); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("err = %v, want ErrAlreadyConnected", err)
	}
}

func TestAuthFailureDeletesCredentials(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	h := dialer.latest("alice")
	h.emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	h.emit(CloseEvent(CloseLoggedOut, "logged out from phone"))
	eventually(t, "record removal", func() bool {
		_, ok := m.GetStatus("alice")
		return !ok
	})

	if creds.Exists("alice") {
		t.Error("credential dir survived an auth failure")
	}
	time.Sleep(5 * 20 * time.Millisecond)
	if n := dialer.dials("alice"); n != 1 {
		t.Errorf("dials = %d, want no reconnect", n)
	}
}

func TestTransientCloseReconnectsOnce(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	first := dialer.latest("alice")
	first.emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	first.emit(CloseEvent(CloseBadSession, "stream error"))
	eventually(t, "reconnect", func() bool { return dialer.dials("alice") == 2 })
	eventually(t, "connecting", statusIs(m, "alice", StatusConnecting))

	if !creds.Exists("alice") {
		t.Error("transient close must keep credentials")
	}
	if got := first.callLog(); len(got) == 0 || got[0] != "close" {
		t.Errorf("old handle calls = %v, want close", got)
	}
	time.Sleep(5 * 20 * time.Millisecond)
	if n := dialer.dials("alice"); n != 2 {
		t.Errorf("dials = %d, want exactly one reconnect", n)
	}
}

func TestFailedReconnectIsNotRetried(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	dialer.failWith("alice", errors.New("session store corrupted"))
	dialer.latest("alice").emit(CloseEvent(CloseBadSession, "stream error"))

	eventually(t, "reconnect attempt", func() bool { return dialer.attemptCount("alice") == 2 })
	time.Sleep(10 * 20 * time.Millisecond)

	if n := dialer.attemptCount("alice"); n != 2 {
		t.Errorf("dial attempts = %d, want the initial dial plus one reconnect", n)
	}
	if _, ok := m.GetStatus("alice"); ok {
		t.Error("failed reconnect left a record")
	}
	if !creds.Exists("alice") {
		t.Error("failed reconnect must keep credentials")
	}
	m.timersMu.Lock()
	pending := len(m.timers)
	m.timersMu.Unlock()
	if pending != 0 {
		t.Errorf("pending reconnect timers = %d, want 0", pending)
	}
}

func TestEndedStreamTreatedAsTransientClose(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	dialer.latest("alice").endStream()

	eventually(t, "reconnect", func() bool { return dialer.dials("alice") == 2 })
}

func TestDisconnectLogsOutBeforeClose(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	h := dialer.latest("alice")
	h.emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	if err := m.Disconnect(context.Background(), "alice"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	calls := h.callLog()
	if len(calls) < 2 || calls[0] != "logout" || calls[1] != "close" {
		t.Errorf("calls = %v, want logout then close", calls)
	}
	if _, ok := m.GetStatus("alice"); ok {
		t.Error("record survived Disconnect")
	}
	if creds.Exists("alice") {
		t.Error("credential dir survived Disconnect")
	}
	time.Sleep(5 * 20 * time.Millisecond)
	if n := dialer.dials("alice"); n != 1 {
		t.Errorf("dials = %d, Disconnect must not reconnect", n)
	}
}

func TestDisconnectSkipsLogoutWhenTransportClosed(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect(context.Background(), "alice"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	for _, call := range dialer.latest("alice").callLog() {
		if call == "logout" {
			t.Error("logout issued on a closed transport")
		}
	}
}

func TestDisconnectUnknownDevice(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Disconnect(context.Background(), "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	m.cfg.ReconnectDelay = 60 * time.Millisecond
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	dialer.latest("alice").emit(CloseEvent(CloseConnectionLost, "timeout"))
	eventually(t, "record removal", func() bool {
		_, ok := m.GetStatus("alice")
		return !ok
	})

	if err := m.Disconnect(context.Background(), "alice"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	time.Sleep(3 * 60 * time.Millisecond)
	if n := dialer.dials("alice"); n != 1 {
		t.Errorf("dials = %d, stale timer resurrected the device", n)
	}
}

func TestReconnectReplacesHandle(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	first := dialer.latest("alice")

	h, err := m.Reconnect(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if h == Handle(first) || dialer.dials("alice") != 2 {
		t.Error("Reconnect should dial a new handle")
	}
	if !creds.Exists("alice") {
		t.Error("Reconnect must keep credentials")
	}

	// the old loop winds down without touching the new record
	time.Sleep(3 * 20 * time.Millisecond)
	if st, _ := m.GetStatus("alice"); st != StatusConnecting {
		t.Errorf("status = %q, want connecting", st)
	}
	if n := dialer.dials("alice"); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
}

func TestAutoRecoverOnStartup(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := creds.Ensure(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(creds.Root(), ".trash"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(creds.Root(), "notes.txt"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	dialer.fail["bob"] = errors.New("corrupt session")

	report := m.AutoRecoverOnStartup(context.Background())

	if report.Found != 3 {
		t.Errorf("found = %d, want 3", report.Found)
	}
	if len(report.Recovered) != 2 {
		t.Errorf("recovered = %v, want alice and carol", report.Recovered)
	}
	if _, ok := report.Failed["bob"]; !ok {
		t.Errorf("failed = %v, want bob", report.Failed)
	}
	for _, id := range []string{"alice", "carol"} {
		if st, ok := m.GetStatus(id); !ok || st != StatusConnecting {
			t.Errorf("%s status = %q, %v", id, st, ok)
		}
	}
}

func TestShutdownClosesWithoutReconnect(t *testing.T) {
	m, dialer, creds := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	h := dialer.latest("alice")
	h.emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if calls := h.callLog(); len(calls) == 0 || calls[0] != "close" {
		t.Errorf("calls = %v, want close without logout", calls)
	}
	if !creds.Exists("alice") {
		t.Error("Shutdown must keep credentials")
	}
	if _, err := m.Connect(context.Background(), "alice"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Connect after Shutdown err = %v", err)
	}
	time.Sleep(3 * 20 * time.Millisecond)
	if n := dialer.dials("alice"); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestJournalRecordsTransitions(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	h := dialer.latest("alice")
	h.emit(QREvent("2@abc"))
	h.emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	entries, err := m.Journal().History(context.Background(), "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []Status{StatusConnected, StatusWaitingForScan, StatusConnecting}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v", entries)
	}
	for i, e := range entries {
		if e.Status != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Status, want[i])
		}
		if e.ID == "" {
			t.Errorf("entries[%d] has no id", i)
		}
	}
}

func TestDeviceStateReleasedAfterFailedQRWait(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	dialer.failWith("alice", errors.New("store corrupted"))

	if _, err := m.WaitForQR(context.Background(), "alice"); err == nil {
		t.Fatal("expected the dial error")
	}

	m.registry.mu.RLock()
	signals := len(m.registry.qrSignals)
	m.registry.mu.RUnlock()
	if signals != 0 {
		t.Errorf("QR signals = %d, want 0", signals)
	}
	m.locksMu.Lock()
	locks := len(m.locks)
	m.locksMu.Unlock()
	if locks != 0 {
		t.Errorf("device locks = %d, want 0", locks)
	}
}

func TestDeviceLocksReleasedAfterDisconnect(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	if _, err := m.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	dialer.latest("alice").emit(OpenEvent())
	eventually(t, "connected", statusIs(m, "alice", StatusConnected))

	if err := m.Disconnect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "device lock released", func() bool {
		m.locksMu.Lock()
		defer m.locksMu.Unlock()
		return len(m.locks) == 0
	})
}
