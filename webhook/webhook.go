package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/botwatch/state"
)

// SignatureHeader carries the HMAC-SHA256 of the body: sha256=<hex>.
const SignatureHeader = "X-Botwatch-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"` // "progress", "completed", "error"
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier delivers job events to webhook endpoints.
type Notifier struct {
	client  *http.Client
	secret  string
	retries []time.Duration
}

// New creates a Notifier. The body is signed when secret is non-empty.
func New(secret string) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		secret:  secret,
		retries: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Deliver sends a webhook event synchronously.
func (n *Notifier) Deliver(ctx context.Context, url string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Botwatch-Webhook/1.0")

	if n.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// DeliverAsync sends a webhook event asynchronously with up to 3 retries.
// Retry intervals: 1s, 5s, 30s.
func (n *Notifier) DeliverAsync(url string, event *Event) {
	go n.deliverWithRetry(url, event)
}

func (n *Notifier) deliverWithRetry(url string, event *Event) {
	delays := append([]time.Duration{0}, n.retries...)
	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		if n.attempt(url, event, attempt+1) {
			return
		}
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
	)
}

func (n *Notifier) attempt(url string, event *Event, attempt int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.Deliver(ctx, url, event); err != nil {
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt,
			"error", err,
		)
		return false
	}
	slog.Debug("webhook delivered",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
		"attempt", attempt,
	)
	return true
}

// Relay returns a job sink hook forwarding events to url. Progress gets a
// single attempt; terminal events are retried.
func (n *Notifier) Relay(url string) func(state.Event) {
	return func(ev state.Event) {
		event := &Event{Type: ev.Type, JobID: ev.JobID, Timestamp: ev.Timestamp, Data: ev.Data}
		if ev.Terminal() {
			n.DeliverAsync(url, event)
			return
		}
		go n.attempt(url, event, 1)
	}
}
