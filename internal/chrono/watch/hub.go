package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports an unknown subscription id.
var ErrNotFound = errors.New("subscription not found")

// Emitter is a function that receives events from the write path.
type Emitter func(Event)

// Hub handles subscription lifecycle and event fan-out. Events are queued
// on a buffered channel; when the queue is full, events are dropped rather
// than blocking writers.
type Hub struct {
	subscriptions map[string]*Subscription
	eventChan     chan Event
	notifier      *Notifier
	logger        *slog.Logger
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewHub creates a hub. Call Start before emitting events.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscriptions: make(map[string]*Subscription),
		eventChan:     make(chan Event, 1000), // Buffered to avoid blocking writes
		notifier:      NewNotifier(logger),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins processing events.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.processEvents()
	h.logger.Info("watch hub started")
}

// Stop drains the event queue and shuts down delivery.
func (h *Hub) Stop() {
	h.cancel()
	close(h.eventChan)
	h.wg.Wait()
	h.notifier.Close()
	h.logger.Info("watch hub stopped")
}

// Emit queues an event for matching. Non-blocking; drops when the queue is
// full.
func (h *Hub) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.eventChan <- event:
	default:
		h.logger.Warn("event queue full, dropping event", "event_id", event.ID, "type", event.Type)
	}
}

// Emitter returns a function bound to Emit, for wiring into the write path.
func (h *Hub) Emitter() Emitter {
	return h.Emit
}

// Register adds a new subscription.
func (h *Hub) Register(req *CreateSubscriptionRequest) (*Subscription, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("subscription name is required")
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Pattern:  req.Pattern,
		Webhook:  req.Webhook,
		Enabled:  true,
		Created:  now,
		Modified: now,
	}

	h.mu.Lock()
	h.subscriptions[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Info("subscription registered", "subscription_id", sub.ID, "name", sub.Name)
	return sub, nil
}

// Unregister removes a subscription and closes its watcher channel.
func (h *Hub) Unregister(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscriptions[id]; !exists {
		return fmt.Errorf("unregistering %s: %w", id, ErrNotFound)
	}
	delete(h.subscriptions, id)
	h.notifier.RemoveWatcher(id)

	h.logger.Info("subscription unregistered", "subscription_id", id)
	return nil
}

// Update modifies an existing subscription.
func (h *Hub) Update(id string, req *UpdateSubscriptionRequest) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, exists := h.subscriptions[id]
	if !exists {
		return nil, fmt.Errorf("updating %s: %w", id, ErrNotFound)
	}

	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.Pattern != nil {
		sub.Pattern = *req.Pattern
	}
	if req.Webhook != nil {
		sub.Webhook = *req.Webhook
	}
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	sub.Modified = time.Now().UTC()

	return sub, nil
}

// Get returns a subscription by id.
func (h *Hub) Get(id string) (*Subscription, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sub, exists := h.subscriptions[id]
	if !exists {
		return nil, fmt.Errorf("getting %s: %w", id, ErrNotFound)
	}
	return sub, nil
}

// List returns all subscriptions.
func (h *Hub) List() []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]*Subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		result = append(result, sub)
	}
	return result
}

// Watch attaches an in-process channel to a subscription. The previous
// watcher for the same subscription, if any, is closed. The returned cancel
// function detaches the watcher.
func (h *Hub) Watch(id string) (<-chan Notification, func(), error) {
	h.mu.RLock()
	_, exists := h.subscriptions[id]
	h.mu.RUnlock()

	if !exists {
		return nil, nil, fmt.Errorf("watching %s: %w", id, ErrNotFound)
	}

	ch := h.notifier.AddWatcher(id)
	return ch, func() { h.notifier.RemoveWatcher(id) }, nil
}

// processEvents is the delivery loop. It drains the queue until Stop closes
// the channel.
func (h *Hub) processEvents() {
	defer h.wg.Done()

	for event := range h.eventChan {
		h.handleEvent(event)
	}
}

// handleEvent fans one event out to every enabled matching subscription.
func (h *Hub) handleEvent(event Event) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		if sub.Enabled {
			subs = append(subs, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Pattern.Matches(event) {
			continue
		}

		now := time.Now().UTC()
		notification := Notification{
			SubscriptionID:   sub.ID,
			SubscriptionName: sub.Name,
			Event:            event,
			MatchedAt:        now,
		}

		h.mu.Lock()
		if s, exists := h.subscriptions[sub.ID]; exists {
			s.LastFired = &now
			s.FireCount++
		}
		h.mu.Unlock()

		if sub.Webhook != "" {
			go h.notifier.SendWebhook(h.ctx, sub.Webhook, notification)
		}
		h.notifier.SendWatcher(sub.ID, notification)

		h.logger.Debug("subscription fired", "subscription_id", sub.ID, "event_type", event.Type)
	}
}
