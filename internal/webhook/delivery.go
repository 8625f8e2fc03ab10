package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/validation"
)

const queueSize = 1000

type Config struct {
	URL                 string
	Secret              string
	Events              []EventType
	Workers             int
	RetryLimit          int
	RetryBackoff        time.Duration
	AllowPrivateNetwork bool
}

// ConfigFromEnv reads WEBHOOK_* variables. An empty URL disables delivery.
func ConfigFromEnv() Config {
	cfg := Config{
		URL:                 env.GetEnvStringOrDefault("WEBHOOK_URL", ""),
		Secret:              env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		Workers:             env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 2),
		RetryLimit:          env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3),
		RetryBackoff:        env.GetEnvDurationOrDefault("WEBHOOK_RETRY_BACKOFF", 2*time.Second),
		AllowPrivateNetwork: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_PRIVATE_NETWORK", false),
	}
	for _, evt := range strings.Split(env.GetEnvStringOrDefault("WEBHOOK_EVENTS", ""), ",") {
		if evt = strings.TrimSpace(evt); evt != "" {
			cfg.Events = append(cfg.Events, EventType(evt))
		}
	}
	return cfg
}

// Engine delivers events to one subscriber URL from a bounded queue. A full
// queue drops events rather than blocking the caller.
type Engine struct {
	cfg        Config
	httpClient *http.Client
	queue      chan WebhookEvent
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := validation.ValidateOutboundURL(cfg.URL, cfg.AllowPrivateNetwork, true); err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan WebhookEvent, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		engine.wg.Add(1)
		go engine.worker()
	}
	return engine, nil
}

// Shutdown stops the workers. Queued events that were not yet picked up are
// dropped.
func (e *Engine) Shutdown() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
	})
}

// Dispatch enqueues event. It reports false when the event is filtered out,
// the engine is stopped, or the queue is full.
func (e *Engine) Dispatch(event WebhookEvent) bool {
	if e.ctx.Err() != nil || !e.shouldDispatch(event.EventType) {
		return false
	}
	select {
	case e.queue <- event:
		return true
	default:
		log.Device(event.DeviceID).WithField("event", event.EventType).Warn("Webhook queue full, event dropped")
		return false
	}
}

func (e *Engine) shouldDispatch(eventType EventType) bool {
	if len(e.cfg.Events) == 0 {
		return true
	}
	for _, evt := range e.cfg.Events {
		if evt == eventType {
			return true
		}
	}
	return false
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case event := <-e.queue:
			e.deliver(event)
		}
	}
}

func (e *Engine) deliver(event WebhookEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Device(event.DeviceID).WithError(err).Error("Failed to encode webhook payload")
		return
	}
	signature := e.generateSignature(payload)
	entry := log.Device(event.DeviceID).WithField("event", event.EventType)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryLimit; attempt++ {
		lastErr = e.post(payload, signature, event.EventType)
		if lastErr == nil {
			entry.WithField("attempt", attempt).Debug("Webhook delivered")
			return
		}
		if attempt < e.cfg.RetryLimit {
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * e.cfg.RetryBackoff):
			}
		}
	}
	entry.WithError(lastErr).WithField("attempts", e.cfg.RetryLimit).Warn("Webhook delivery failed")
}

func (e *Engine) post(payload []byte, signature string, eventType EventType) error {
	req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(eventType))
	req.Header.Set("User-Agent", "go-whatsapp-gateway/2.0")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (e *Engine) generateSignature(payload []byte) string {
	if e.cfg.Secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(e.cfg.Secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
