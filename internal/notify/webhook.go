package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const signaturePrefix = "sha256="

// ErrDispatcherClosed is returned by Emit once Close has been called.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher posts signed events to one outbound webhook from a single
// background goroutine. Emit never blocks; a full queue drops the event.
type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	deliveries chan delivery
	onDrop     func()
	wg         sync.WaitGroup

	// mu guards closed and the close of deliveries.
	mu     sync.RWMutex
	closed bool
}

type delivery struct {
	id      string
	event   string
	payload []byte
}

type DispatcherOption func(*Dispatcher)

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.deliveries = make(chan delivery, n) }
}

// WithDropHook is called for every event that is dropped or fails delivery.
func WithDropHook(f func()) DispatcherOption {
	return func(d *Dispatcher) { d.onDrop = f }
}

func NewDispatcher(url, secret string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		deliveries: make(chan delivery, 1000),
		onDrop:     func() {},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.processLoop()
	return d
}

func (d *Dispatcher) Emit(_ context.Context, event string, payload any) error {
	data, err := json.Marshal(Event{Type: event, Data: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.onDrop()
		return fmt.Errorf("emit %s: %w", event, ErrDispatcherClosed)
	}

	select {
	case d.deliveries <- delivery{id: uuid.NewString(), event: event, payload: data}:
		return nil
	default:
		slog.Warn("webhook delivery queue full, dropping", "event", event)
		d.onDrop()
		return fmt.Errorf("webhook queue full, dropped %s", event)
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
// It is safe to call more than once and concurrently with Emit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.deliveries)
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.httpClient.CloseIdleConnections()
}

func (d *Dispatcher) processLoop() {
	defer d.wg.Done()
	for req := range d.deliveries {
		d.deliver(req)
	}
}

func (d *Dispatcher) deliver(req delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(req.payload))
	if err != nil {
		slog.Error("webhook request creation failed", "error", err)
		d.onDrop()
		return
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", req.event)
	httpReq.Header.Set("X-Webhook-Signature", Sign(req.payload, d.secret))
	httpReq.Header.Set("X-Webhook-ID", req.id)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("webhook delivery failed", "error", err, "event", req.event, "delivery_id", req.id)
		d.onDrop()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("webhook received non-success response", "status", resp.StatusCode, "event", req.event, "delivery_id", req.id)
		d.onDrop()
	}
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
