package whatsapp

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusConnecting     Status = "connecting"
	StatusWaitingForScan Status = "waiting_for_scan"
	StatusConnected      Status = "connected"
	StatusDisconnected   Status = "disconnected"
)

// Record is the registry's view of one device connection. Values returned
// by the Registry are snapshots; mutate through the Registry only.
type Record struct {
	DeviceID    string
	Handle      Handle
	Status      Status
	IsConnected bool
	Generation  uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DeviceInfo struct {
	DeviceID    string    `json:"deviceId"`
	Status      Status    `json:"status"`
	IsConnected bool      `json:"isConnected"`
	HasQR       bool      `json:"hasQr"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Registry maps device identifiers to connection records and pending QR
// challenges. It does no I/O.
type Registry struct {
	mu         sync.RWMutex
	records    map[string]*Record
	qr         map[string]string
	qrSignals  map[string]chan struct{}
	epochs     map[string]uint64
	generation uint64
}

func NewRegistry() *Registry {
	return &Registry{
		records:   make(map[string]*Record),
		qr:        make(map[string]string),
		qrSignals: make(map[string]chan struct{}),
		epochs:    make(map[string]uint64),
	}
}

func (r *Registry) Get(deviceID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[deviceID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Insert creates a connecting record for deviceID, replacing any previous
// one, and returns it with a fresh generation number.
func (r *Registry) Insert(deviceID string, handle Handle) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	now := time.Now()
	rec := &Record{
		DeviceID:   deviceID,
		Handle:     handle,
		Status:     StatusConnecting,
		Generation: r.generation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.records[deviceID] = rec
	return *rec
}

// UpdateStatus mutates an existing record. IsConnected follows the status and
// a connected device never keeps a pending QR.
func (r *Registry) UpdateStatus(deviceID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	r.applyStatus(rec, status)
	return nil
}

// UpdateStatusIf is UpdateStatus restricted to the given record generation.
func (r *Registry) UpdateStatusIf(deviceID string, generation uint64, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[deviceID]
	if !ok || rec.Generation != generation {
		return false
	}
	r.applyStatus(rec, status)
	return true
}

func (r *Registry) applyStatus(rec *Record, status Status) {
	rec.Status = status
	rec.IsConnected = status == StatusConnected
	rec.UpdatedAt = time.Now()
	if rec.IsConnected {
		delete(r.qr, rec.DeviceID)
	}
}

// Remove drops the record, any pending QR and its waiters' signal. Removing an absent device is
// not an error.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, deviceID)
	delete(r.qr, deviceID)
	r.releaseQRSignal(deviceID)
}

// RemoveIf removes the record only if it still has the given generation.
func (r *Registry) RemoveIf(deviceID string, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[deviceID]
	if !ok || rec.Generation != generation {
		return false
	}
	delete(r.records, deviceID)
	delete(r.qr, deviceID)
	r.releaseQRSignal(deviceID)
	return true
}

// DropOrphanQRSignal releases the QR signal of a device that has no record.
// Waiters call it on exit so abandoned devices leave nothing behind.
func (r *Registry) DropOrphanQRSignal(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[deviceID]; !ok {
		r.releaseQRSignal(deviceID)
	}
}

// releaseQRSignal wakes pending waiters and forgets the signal. Callers hold
// r.mu.
func (r *Registry) releaseQRSignal(deviceID string) {
	if ch, ok := r.qrSignals[deviceID]; ok {
		close(ch)
		delete(r.qrSignals, deviceID)
	}
}

func (r *Registry) SetQR(deviceID string, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qr[deviceID] = payload
	r.releaseQRSignal(deviceID)
}

func (r *Registry) ClearQR(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.qr, deviceID)
}

func (r *Registry) GetQR(deviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payload, ok := r.qr[deviceID]
	return payload, ok
}

// QRSignal returns a channel closed by the next SetQR for deviceID.
func (r *Registry) QRSignal(deviceID string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.qrSignals[deviceID]
	if !ok {
		ch = make(chan struct{})
		r.qrSignals[deviceID] = ch
	}
	return ch
}

// Epoch is a per-device counter that outlives records. Reconnect timers
// capture it and only fire while it is unchanged.
func (r *Registry) Epoch(deviceID string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epochs[deviceID]
}

func (r *Registry) BumpEpoch(deviceID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epochs[deviceID]++
	return r.epochs[deviceID]
}

func (r *Registry) List() []DeviceInfo {
	r.mu.RLock()
	devices := make([]DeviceInfo, 0, len(r.records))
	for id, rec := range r.records {
		_, hasQR := r.qr[id]
		devices = append(devices, DeviceInfo{
			DeviceID:    id,
			Status:      rec.Status,
			IsConnected: rec.IsConnected,
			HasQR:       hasQR,
			UpdatedAt:   rec.UpdatedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Records returns snapshots of every record, unordered.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}
