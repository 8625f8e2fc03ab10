package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"
)

const defaultVersionRefreshInterval = 10 * time.Minute

type WAVersionStatus struct {
	CurrentVersion string     `json:"currentVersion"`
	LastRefreshed  *time.Time `json:"lastRefreshed,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
}

type versionFetcher func(ctx context.Context, httpClient *http.Client) (*store.WAVersionContainer, error)

// VersionRefresher keeps the WhatsApp Web version advertised by new
// connections current. Concurrent refreshes are coalesced.
type VersionRefresher struct {
	minInterval time.Duration
	httpClient  *http.Client
	fetch       versionFetcher
	group       singleflight.Group

	mu        sync.RWMutex
	lastAt    *time.Time
	lastError string
}

func NewVersionRefresher(minInterval time.Duration) *VersionRefresher {
	if minInterval < 0 {
		minInterval = defaultVersionRefreshInterval
	}
	return &VersionRefresher{
		minInterval: minInterval,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		fetch:       whatsmeow.GetLatestVersion,
	}
}

func (r *VersionRefresher) Status() WAVersionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := WAVersionStatus{
		CurrentVersion: store.GetWAVersion().String(),
		LastError:      r.lastError,
	}
	if r.lastAt != nil {
		t := *r.lastAt
		status.LastRefreshed = &t
	}
	return status
}

// Refresh fetches and applies the latest version. Unless force is set it is
// a no-op within minInterval of the previous attempt; the bool result
// reports whether a fetch happened.
func (r *VersionRefresher) Refresh(ctx context.Context, force bool) (WAVersionStatus, bool, error) {
	if !force && r.minInterval > 0 {
		r.mu.RLock()
		last := r.lastAt
		r.mu.RUnlock()
		if last != nil && time.Since(*last) < r.minInterval {
			return r.Status(), false, nil
		}
	}

	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		latest, err := r.fetch(ctx, r.httpClient)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		now := time.Now()
		r.lastAt = &now
		if err != nil {
			r.lastError = err.Error()
			return nil, err
		}
		store.SetWAVersion(*latest)
		r.lastError = ""
		return nil, nil
	})
	return r.Status(), true, err
}
