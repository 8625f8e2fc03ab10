package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Journal-only statuses. They describe why a record went away.
const (
	StatusSessionExpired Status = "session_expired"
	StatusLoggedOut      Status = "logged_out"
)

const journalHistoryLimit = 50

type StatusEntry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusJournal records lifecycle transitions for later inspection.
// Failures never affect the lifecycle itself.
type StatusJournal interface {
	Append(ctx context.Context, entry StatusEntry) error
	History(ctx context.Context, deviceID string, limit int) ([]StatusEntry, error)
	Backend() string
	Close() error
}

func newStatusEntry(deviceID string, status Status, reason string) StatusEntry {
	return StatusEntry{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Status:    status,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// MemoryJournal keeps the most recent entries per device in process.
type MemoryJournal struct {
	mu      sync.Mutex
	max     int
	entries map[string][]StatusEntry
}

func NewMemoryJournal(perDevice int) *MemoryJournal {
	if perDevice <= 0 {
		perDevice = journalHistoryLimit
	}
	return &MemoryJournal{max: perDevice, entries: make(map[string][]StatusEntry)}
}

func (j *MemoryJournal) Append(_ context.Context, entry StatusEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	list := append(j.entries[entry.DeviceID], entry)
	if len(list) > j.max {
		list = list[len(list)-j.max:]
	}
	j.entries[entry.DeviceID] = list
	return nil
}

// History returns newest first.
func (j *MemoryJournal) History(_ context.Context, deviceID string, limit int) ([]StatusEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	list := j.entries[deviceID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]StatusEntry, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (j *MemoryJournal) Backend() string { return "memory" }

func (j *MemoryJournal) Close() error { return nil }

// PostgresJournal appends entries to the device_status_log table.
type PostgresJournal struct {
	db *sql.DB
}

func OpenPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS device_status_log (
		id UUID PRIMARY KEY,
		device_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create device_status_log: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_device_status_log_device
		ON device_status_log (device_id, created_at DESC)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("index device_status_log: %w", err)
	}

	return &PostgresJournal{db: db}, nil
}

func (j *PostgresJournal) Append(ctx context.Context, entry StatusEntry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		id = uuid.New()
	}
	var reason sql.NullString
	if entry.Reason != "" {
		reason = sql.NullString{String: entry.Reason, Valid: true}
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO device_status_log (id, device_id, status, reason, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id.String(), entry.DeviceID, string(entry.Status), reason, entry.CreatedAt)
	return err
}

func (j *PostgresJournal) History(ctx context.Context, deviceID string, limit int) ([]StatusEntry, error) {
	if limit <= 0 || limit > journalHistoryLimit {
		limit = journalHistoryLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, device_id, status, reason, created_at FROM device_status_log
		 WHERE device_id = $1 ORDER BY created_at DESC LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StatusEntry
	for rows.Next() {
		var e StatusEntry
		var status string
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.DeviceID, &status, &reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		if reason.Valid {
			e.Reason = reason.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *PostgresJournal) Backend() string { return "postgres" }

func (j *PostgresJournal) Close() error {
	return j.db.Close()
}
