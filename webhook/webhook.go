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
)

// Event is the payload sent to the webhook endpoint.
type Event struct {
	Type      string      `json:"type"` // "connection.unhealthy" or "pool.timeout"
	Provider  string      `json:"provider"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Notifier delivers pool events to an operator-configured endpoint.
// It satisfies the pool.EventSink interface. A zero URL disables it.
type Notifier struct {
	URL    string
	Secret string
}

// NewNotifier creates a Notifier. Returns nil when url is empty so the
// caller can pass it straight into the pool manager.
func NewNotifier(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{URL: url, Secret: secret}
}

// ConnectionUnhealthy reports a connection permanently excluded from
// selection.
func (n *Notifier) ConnectionUnhealthy(provider string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	n.deliverAsync(&Event{
		Type:      "connection.unhealthy",
		Provider:  provider,
		Timestamp: time.Now().Unix(),
		Data:      map[string]string{"error": msg},
	})
}

// PoolTimeout reports a capacity wait that exceeded its ceiling.
func (n *Notifier) PoolTimeout(provider string) {
	n.deliverAsync(&Event{
		Type:      "pool.timeout",
		Provider:  provider,
		Timestamp: time.Now().Unix(),
	})
}

// Deliver sends an event synchronously.
// The request body is signed with HMAC-SHA256 if Secret is non-empty.
// Header: X-Egress-Signature: sha256=<hex>
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Egress-Webhook/1.0")

	if n.Secret != "" {
		mac := hmac.New(sha256.New, []byte(n.Secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Egress-Signature", "sha256="+sig)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// deliverAsync sends an event asynchronously with up to 3 retries.
// Retry intervals: 1s, 5s, 30s.
func (n *Notifier) deliverAsync(event *Event) {
	go func() {
		delays := []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := n.Deliver(ctx, event)
			cancel()
			if err == nil {
				slog.Debug("webhook delivered",
					"event", event.Type,
					"provider", event.Provider,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"event", event.Type,
				"provider", event.Provider,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"event", event.Type,
			"provider", event.Provider,
		)
	}()
}
