// Package watch delivers change notifications for graph mutations.
// Subscriptions pair a match pattern with a delivery method: a webhook URL,
// an in-process channel, or both. Registration is in-memory; subscriptions
// do not survive a restart.
package watch

import (
	"time"
)

// Event describes one committed mutation.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Node event fields
	NodeID    string `json:"node_id,omitempty"`
	NodeLabel string `json:"node_label,omitempty"`

	// Edge event fields
	EdgeID      string `json:"edge_id,omitempty"`
	EdgeType    string `json:"edge_type,omitempty"`
	SourceID    string `json:"source_node_id,omitempty"`
	TargetID    string `json:"target_node_id,omitempty"`
	CompositeID string `json:"composite_id,omitempty"`

	// VersionID names the version record the mutation produced. Empty on
	// composite events, which cover several records.
	VersionID string `json:"version_id,omitempty"`
}

// Event type constants
const (
	EventNodeCreated      = "node.created"
	EventNodeUpdated      = "node.updated"
	EventNodeDeleted      = "node.deleted"
	EventEdgeCreated      = "edge.created"
	EventEdgeUpdated      = "edge.updated"
	EventEdgeDeleted      = "edge.deleted"
	EventCompositeCreated = "composite.created"
	EventCompositeDeleted = "composite.deleted"
)

// Pattern defines what events a subscription matches. Empty criteria match
// everything.
type Pattern struct {
	EventTypes []string `json:"event_types,omitempty"`
	NodeLabels []string `json:"node_labels,omitempty"`
	EdgeTypes  []string `json:"edge_types,omitempty"`
}

// Subscription is a standing watch that fires when its pattern matches.
type Subscription struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Pattern Pattern `json:"pattern"`

	// Webhook is POSTed each notification when set.
	Webhook string `json:"webhook,omitempty"`

	Enabled   bool       `json:"enabled"`
	Created   time.Time  `json:"created"`
	Modified  time.Time  `json:"modified"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	FireCount int        `json:"fire_count"`
}

// Notification is delivered when a subscription pattern matches an event.
type Notification struct {
	SubscriptionID   string    `json:"subscription_id"`
	SubscriptionName string    `json:"subscription_name"`
	Event            Event     `json:"event"`
	MatchedAt        time.Time `json:"matched_at"`
}

// CreateSubscriptionRequest registers a new subscription.
type CreateSubscriptionRequest struct {
	Name    string  `json:"name"`
	Pattern Pattern `json:"pattern"`
	Webhook string  `json:"webhook,omitempty"`
}

// UpdateSubscriptionRequest modifies an existing subscription. Nil fields
// are left unchanged.
type UpdateSubscriptionRequest struct {
	Name    *string  `json:"name,omitempty"`
	Pattern *Pattern `json:"pattern,omitempty"`
	Webhook *string  `json:"webhook,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}
