package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
)

const (
	DefaultReconnectDelay      = 5 * time.Second
	DefaultQRPollInterval      = time.Second
	DefaultQRPollAttempts      = 30
	DefaultRecoveryConcurrency = 4

	journalTimeout = 3 * time.Second
)

type ManagerConfig struct {
	ReconnectDelay      time.Duration
	QRPollInterval      time.Duration
	QRPollAttempts      int
	RecoveryConcurrency int
}

func (c *ManagerConfig) setDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.QRPollInterval <= 0 {
		c.QRPollInterval = DefaultQRPollInterval
	}
	if c.QRPollAttempts <= 0 {
		c.QRPollAttempts = DefaultQRPollAttempts
	}
	if c.RecoveryConcurrency <= 0 {
		c.RecoveryConcurrency = DefaultRecoveryConcurrency
	}
}

// RecoveryReport summarises one AutoRecoverOnStartup pass.
type RecoveryReport struct {
	Found     int               `json:"found"`
	Recovered []string          `json:"recovered"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Manager is the only component that opens or closes device connections.
// Registry state is mutated by the Manager and by the per-device event loops
// it starts.
type Manager struct {
	cfg      ManagerConfig
	registry *Registry
	creds    *CredentialStore
	dialer   Dialer
	journal  StatusJournal

	connects singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*deviceLock

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
	closed atomic.Bool
}

func NewManager(cfg ManagerConfig, registry *Registry, creds *CredentialStore, dialer Dialer, journal StatusJournal) *Manager {
	cfg.setDefaults()
	if journal == nil {
		journal = NewMemoryJournal(journalHistoryLimit)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		registry: registry,
		creds:    creds,
		dialer:   dialer,
		journal:  journal,
		locks:    make(map[string]*deviceLock),
		timers:   make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) Journal() StatusJournal {
	return m.journal
}

type deviceLock struct {
	mu   sync.Mutex
	refs int
}

// lock serialises lifecycle changes of one device. The entry is dropped once
// no goroutine holds or waits for it.
func (m *Manager) lock(deviceID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		m.locks[deviceID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, deviceID)
		}
		m.locksMu.Unlock()
	}
}

// Connect opens a connection for deviceID unless a live record already
// exists, in which case the existing handle is returned. The returned handle
// is not necessarily connected yet.
func (m *Manager) Connect(ctx context.Context, deviceID string) (Handle, error) {
	return m.connectGuarded(ctx, deviceID, nil)
}

func (m *Manager) connectGuarded(ctx context.Context, deviceID string, epoch *uint64) (Handle, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	v, err, _ := m.connects.Do(deviceID, func() (interface{}, error) {
		return m.connect(ctx, deviceID, epoch)
	})
	if epoch == nil && errors.Is(err, errStaleReconnect) {
		// joined a superseded reconnect attempt
		v, err = m.connect(ctx, deviceID, nil)
	}
	if err != nil {
		return nil, err
	}
	return v.(Handle), nil
}

var errStaleReconnect = errors.New("reconnect superseded")

func (m *Manager) connect(ctx context.Context, deviceID string, epoch *uint64) (Handle, error) {
	unlock := m.lock(deviceID)
	defer unlock()

	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if epoch != nil && m.registry.Epoch(deviceID) != *epoch {
		return nil, errStaleReconnect
	}
	if rec, ok := m.registry.Get(deviceID); ok && rec.Status != StatusDisconnected {
		return rec.Handle, nil
	}

	dir, err := m.creds.Ensure(deviceID)
	if err != nil {
		return nil, err
	}

	handle, err := m.dialer.Dial(ctx, deviceID, dir)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", deviceID, err)
	}

	rec := m.registry.Insert(deviceID, handle)
	m.note(deviceID, StatusConnecting, "")
	log.Device(deviceID).Info("Connecting device")

	m.loops.Add(1)
	go m.consume(deviceID, rec.Generation, handle)

	return handle, nil
}

// consume is the single consumer of one handle's events.
func (m *Manager) consume(deviceID string, generation uint64, handle Handle) {
	defer m.loops.Done()

	for evt := range handle.Events() {
		if m.dispatch(deviceID, generation, handle, evt) {
			return
		}
	}

	m.handleClose(deviceID, generation, handle, CloseReason{
		Code:    CloseConnectionClosed,
		Message: "event stream ended",
	})
}

// dispatch applies one event and reports whether the loop is finished.
func (m *Manager) dispatch(deviceID string, generation uint64, handle Handle, evt Event) bool {
	switch evt.Kind {
	case EventCredentials:
		if err := handle.SaveCredentials(m.ctx); err != nil {
			log.Device(deviceID).WithError(err).Error("Failed to persist credentials")
		}
	case EventQR:
		if m.registry.UpdateStatusIf(deviceID, generation, StatusWaitingForScan) {
			m.registry.SetQR(deviceID, evt.QR)
			m.note(deviceID, StatusWaitingForScan, "")
		}
	case EventOpen:
		if m.registry.UpdateStatusIf(deviceID, generation, StatusConnected) {
			m.registry.ClearQR(deviceID)
			m.note(deviceID, StatusConnected, "")
			log.Device(deviceID).Info("Device connected")
		}
	case EventClose:
		m.handleClose(deviceID, generation, handle, evt.Reason)
		return true
	}
	return false
}

func (m *Manager) handleClose(deviceID string, generation uint64, handle Handle, reason CloseReason) {
	unlock := m.lock(deviceID)

	current := m.registry.UpdateStatusIf(deviceID, generation, StatusDisconnected)
	if err := handle.Close(); err != nil {
		log.Device(deviceID).WithError(err).Debug("Error closing handle")
	}
	if !current {
		unlock()
		return
	}
	m.registry.RemoveIf(deviceID, generation)

	if reason.IsAuthFailure() {
		m.registry.BumpEpoch(deviceID)
		m.stopTimer(deviceID)
		if err := m.creds.Remove(deviceID); err != nil {
			log.Device(deviceID).WithError(err).Error("Failed to delete credentials")
		}
		unlock()
		m.note(deviceID, StatusSessionExpired, reason.String())
		log.Device(deviceID).Warn("Session expired, credentials removed: " + reason.String())
		return
	}

	if m.closed.Load() {
		unlock()
		m.note(deviceID, StatusDisconnected, reason.String())
		return
	}
	m.scheduleReconnect(deviceID)
	unlock()

	m.note(deviceID, StatusDisconnected, reason.String())
	log.Device(deviceID).Warn("Connection closed, reconnecting: " + reason.String())
}

// scheduleReconnect arms exactly one reconnect timer for deviceID. Callers
// hold the device lock.
func (m *Manager) scheduleReconnect(deviceID string) {
	epoch := m.registry.BumpEpoch(deviceID)

	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if t, ok := m.timers[deviceID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.timersMu.Lock()
		if m.timers[deviceID] == timer {
			delete(m.timers, deviceID)
		}
		m.timersMu.Unlock()
		m.fireReconnect(deviceID, epoch)
	})
	m.timers[deviceID] = timer
}

func (m *Manager) fireReconnect(deviceID string, epoch uint64) {
	if m.closed.Load() || m.registry.Epoch(deviceID) != epoch {
		return
	}
	_, err := m.connectGuarded(m.ctx, deviceID, &epoch)
	switch {
	case err == nil:
	case errors.Is(err, errStaleReconnect), errors.Is(err, ErrManagerClosed):
	default:
		// no further attempt; the device stays absent until connected again
		log.Device(deviceID).WithError(err).Error("Reconnect failed")
	}
}

func (m *Manager) stopTimer(deviceID string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if t, ok := m.timers[deviceID]; ok {
		t.Stop()
		delete(m.timers, deviceID)
	}
}

// Disconnect logs the device out, closes it and deletes its credentials. No
// reconnect follows.
func (m *Manager) Disconnect(ctx context.Context, deviceID string) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}

	unlock := m.lock(deviceID)
	defer unlock()

	m.registry.BumpEpoch(deviceID)
	m.stopTimer(deviceID)

	rec, ok := m.registry.Get(deviceID)
	if !ok && !m.creds.Exists(deviceID) {
		return ErrDeviceNotFound
	}

	if ok {
		m.registry.Remove(deviceID)
		if rec.Handle.IsOpen() {
			if err := rec.Handle.Logout(ctx); err != nil {
				log.Device(deviceID).WithError(err).Warn("Logout failed, closing anyway")
			}
		}
		if err := rec.Handle.Close(); err != nil {
			log.Device(deviceID).WithError(err).Debug("Error closing handle")
		}
	}

	if err := m.creds.Remove(deviceID); err != nil {
		return err
	}

	m.note(deviceID, StatusLoggedOut, "disconnect requested")
	log.Device(deviceID).Info("Device disconnected")
	return nil
}

// Reconnect tears down the live connection, keeping credentials, and
// connects again.
func (m *Manager) Reconnect(ctx context.Context, deviceID string) (Handle, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	unlock := m.lock(deviceID)
	m.registry.BumpEpoch(deviceID)
	m.stopTimer(deviceID)
	rec, ok := m.registry.Get(deviceID)
	if !ok && !m.creds.Exists(deviceID) {
		unlock()
		return nil, ErrDeviceNotFound
	}
	if ok {
		m.registry.Remove(deviceID)
		if err := rec.Handle.Close(); err != nil {
			log.Device(deviceID).WithError(err).Debug("Error closing handle")
		}
		m.note(deviceID, StatusDisconnected, "reconnect requested")
	}
	unlock()

	return m.Connect(ctx, deviceID)
}

func (m *Manager) GetStatus(deviceID string) (Status, bool) {
	rec, ok := m.registry.Get(deviceID)
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// GetHandle returns the handle of a connected device.
func (m *Manager) GetHandle(deviceID string) (Handle, error) {
	rec, ok := m.registry.Get(deviceID)
	if !ok || !rec.IsConnected {
		return nil, ErrNotConnected
	}
	return rec.Handle, nil
}

func (m *Manager) ListDevices() []DeviceInfo {
	return m.registry.List()
}

// WaitForQR returns the pending pairing code for deviceID, connecting first
// if needed.
func (m *Manager) WaitForQR(ctx context.Context, deviceID string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}

	rec, ok := m.registry.Get(deviceID)
	if ok && rec.IsConnected {
		return "", ErrAlreadyConnected
	}

	signal := m.registry.QRSignal(deviceID)
	defer m.registry.DropOrphanQRSignal(deviceID)
	if !ok {
		if _, err := m.Connect(ctx, deviceID); err != nil {
			return "", err
		}
	}

	ticker := time.NewTicker(m.cfg.QRPollInterval)
	defer ticker.Stop()

	for attempts := 0; ; {
		if rec, ok := m.registry.Get(deviceID); ok && rec.IsConnected {
			return "", ErrAlreadyConnected
		}
		if qr, ok := m.registry.GetQR(deviceID); ok {
			return qr, nil
		}
		if attempts >= m.cfg.QRPollAttempts {
			return "", ErrQRTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-signal:
			signal = m.registry.QRSignal(deviceID)
		case <-ticker.C:
			attempts++
		}
	}
}

// AutoRecoverOnStartup connects every device that has a credential
// directory. Individual failures are logged and counted.
func (m *Manager) AutoRecoverOnStartup(ctx context.Context) RecoveryReport {
	report := RecoveryReport{Recovered: []string{}, Failed: map[string]string{}}

	ids, err := m.creds.List()
	if err != nil {
		log.Logger().WithError(err).Error("Failed to list stored sessions")
		return report
	}
	report.Found = len(ids)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.cfg.RecoveryConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			_, err := m.Connect(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err.Error()
				log.Device(id).WithError(err).Error("Failed to recover session")
				return nil
			}
			report.Recovered = append(report.Recovered, id)
			return nil
		})
	}
	_ = g.Wait()

	log.Logger().Infof("Startup recovery: %d found, %d recovered, %d failed",
		report.Found, len(report.Recovered), len(report.Failed))
	return report
}

// Shutdown stops reconnect timers and closes every handle without logging
// out. Credentials stay on disk.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.timersMu.Lock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.timersMu.Unlock()

	for _, rec := range m.registry.Records() {
		unlock := m.lock(rec.DeviceID)
		m.registry.RemoveIf(rec.DeviceID, rec.Generation)
		if err := rec.Handle.Close(); err != nil {
			log.Device(rec.DeviceID).WithError(err).Debug("Error closing handle")
		}
		unlock()
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) note(deviceID string, status Status, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := m.journal.Append(ctx, newStatusEntry(deviceID, status, reason)); err != nil {
		log.Device(deviceID).WithError(err).Warn("Failed to journal status")
	}
}
