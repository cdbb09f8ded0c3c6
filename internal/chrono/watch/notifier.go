package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// watcherBuffer is the per-subscription channel depth. Slow consumers lose
// notifications past this depth rather than stalling delivery.
const watcherBuffer = 64

// Notifier delivers notifications via webhooks and in-process channels.
type Notifier struct {
	httpClient *http.Client
	watchers   map[string]chan Notification // subscription id -> channel
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewNotifier creates a notifier with a bounded HTTP client.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		watchers: make(map[string]chan Notification),
		logger:   logger,
	}
}

// Close closes all watcher channels.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.watchers {
		close(ch)
	}
	n.watchers = make(map[string]chan Notification)
}

// AddWatcher attaches a channel for a subscription, replacing and closing
// any existing one.
func (n *Notifier) AddWatcher(subID string) <-chan Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.watchers[subID]; ok {
		close(existing)
	}
	ch := make(chan Notification, watcherBuffer)
	n.watchers[subID] = ch
	return ch
}

// RemoveWatcher detaches and closes the channel for a subscription.
func (n *Notifier) RemoveWatcher(subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ch, ok := n.watchers[subID]; ok {
		close(ch)
		delete(n.watchers, subID)
	}
}

// SendWatcher delivers to the subscription's channel when one is attached.
// Non-blocking; a full channel drops the notification.
func (n *Notifier) SendWatcher(subID string, notification Notification) {
	n.mu.RLock()
	ch, ok := n.watchers[subID]
	n.mu.RUnlock()

	if !ok {
		return
	}
	select {
	case ch <- notification:
	default:
		n.logger.Warn("watcher channel full, dropping notification", "subscription_id", subID)
	}
}

// SendWebhook POSTs the notification, retrying twice with quadratic
// backoff.
func (n *Notifier) SendWebhook(ctx context.Context, url string, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		n.logger.Error("marshaling webhook notification", "error", err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Chronograph-Event", notification.Event.Type)
		req.Header.Set("X-Chronograph-Subscription", notification.SubscriptionID)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Warn("webhook delivery failed", "url", url, "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.logger.Debug("webhook delivered", "url", url, "subscription_id", notification.SubscriptionID)
			return nil
		}

		lastErr = &WebhookError{URL: url, StatusCode: resp.StatusCode}
		n.logger.Warn("webhook delivery rejected", "url", url, "attempt", attempt+1, "status", resp.StatusCode)
	}

	n.logger.Error("webhook delivery gave up", "url", url, "error", lastErr)
	return lastErr
}

// WebhookError reports a webhook endpoint rejecting a delivery.
type WebhookError struct {
	URL        string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return "webhook delivery failed"
}
