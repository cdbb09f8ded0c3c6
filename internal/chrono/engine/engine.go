// Package engine implements the versioned write path: schema validation,
// identity issuance, interval chaining, and optimistic compare-and-commit
// with bounded retry.
//
// Every mutation follows the same shape. Read the entity's open version,
// build the next version with a commit instant strictly after the previous
// valid_from, and ask the store to close the old version and insert the new
// one in a single transaction. If another writer closed the version first
// the commit fails with a conflict and the whole attempt is rerun against
// fresh state.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
	"github.com/chronograph-db/chronograph/internal/chrono/identity"
	"github.com/chronograph-db/chronograph/internal/chrono/schema"
	"github.com/chronograph-db/chronograph/internal/chrono/store"
)

// Config bounds retry behavior for conflicted commits.
type Config struct {
	// MaxRetries is how many times a conflicted commit is rerun after the
	// first attempt.
	MaxRetries int

	// RetryBackoff is the delay before the first retry. Each further retry
	// doubles it.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential growth.
	MaxRetryBackoff time.Duration

	// RetryJitter randomizes each delay by plus or minus this fraction.
	RetryJitter float64
}

// DefaultConfig returns the retry policy used when New receives a zero
// Config.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		RetryBackoff:    20 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
		RetryJitter:     0.25,
	}
}

// Engine is the single write path for nodes, edges, and composite groups.
type Engine struct {
	store    store.Store
	registry *schema.Registry
	ids      identity.Issuer
	clock    core.Clock
	logger   *slog.Logger
	cfg      Config
}

// New builds an Engine over the given store and schema registry.
func New(st store.Store, registry *schema.Registry, cfg Config, logger *slog.Logger) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		registry: registry,
		clock:    core.SystemClock(),
		logger:   logger,
		cfg:      cfg,
	}
}

// SetClock replaces the time source. Tests use it to drive deterministic
// commit instants.
func (e *Engine) SetClock(c core.Clock) { e.clock = c }

// Registry exposes the schema registry for introspection surfaces.
func (e *Engine) Registry() *schema.Registry { return e.registry }

// nextInstant picks a commit instant strictly after the previous version's
// valid_from, so per-entity intervals never collapse to zero width even
// when the wall clock regresses.
func (e *Engine) nextInstant(prev time.Time) time.Time {
	now := e.clock.Now().UTC()
	if floor := prev.Add(time.Nanosecond); now.Before(floor) {
		return floor
	}
	return now
}

// NodeInput describes a node create request.
type NodeInput struct {
	Label      string
	Properties core.Properties
}

// CreateNode validates the input against the schema, issues a fresh id, and
// writes the node's first version.
func (e *Engine) CreateNode(ctx context.Context, in NodeInput) (*core.Node, error) {
	content, err := e.registry.NormalizeNode(in.Label, in.Properties)
	if err != nil {
		return nil, err
	}

	var created *core.Node
	err = e.withRetry(ctx, "create node", func(ctx context.Context) error {
		now := e.clock.Now().UTC()
		v := &core.NodeVersion{
			VersionID: e.ids.NewVersionID(),
			NodeID:    e.ids.NewID(),
			Label:     in.Label,
			Operation: core.OpCreate,
			Content:   content,
			Timestamp: now,
			ValidFrom: now,
		}
		if err := e.store.InsertNodeVersion(ctx, v); err != nil {
			return err
		}
		created = core.NodeView(v, now).Node
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("node created", "node_id", created.ID, "label", created.Label)
	return created, nil
}

// UpdateNode appends an UPDATE version carrying the full replacement
// property set. The label is fixed at creation and cannot change.
func (e *Engine) UpdateNode(ctx context.Context, nodeID string, props core.Properties) (*core.Node, error) {
	var updated *core.Node
	err := e.withRetry(ctx, "update node", func(ctx context.Context) error {
		open, err := e.store.OpenNodeVersion(ctx, nodeID)
		if err != nil {
			return err
		}
		if open.Tombstone() {
			return &core.NotFoundError{Kind: core.KindNode, ID: nodeID, DeletedBefore: true, DeletedAt: open.ValidFrom}
		}

		content, err := e.registry.NormalizeNode(open.Label, props)
		if err != nil {
			return err
		}

		now := e.nextInstant(open.ValidFrom)
		next := &core.NodeVersion{
			VersionID: e.ids.NewVersionID(),
			NodeID:    nodeID,
			Label:     open.Label,
			Operation: core.OpUpdate,
			Content:   content,
			Timestamp: now,
			ValidFrom: now,
		}
		if err := e.store.CommitNodeVersion(ctx, open.VersionID, next); err != nil {
			return err
		}
		updated = core.NodeView(next, now).Node
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("node updated", "node_id", nodeID, "version_id", updated.VersionID)
	return updated, nil
}

// DeleteNode appends a DELETE tombstone and returns it. The node's history
// stays readable through as-of and history queries; edges referencing the
// node are not touched and become invisible to neighbor queries at instants
// where the node is gone.
func (e *Engine) DeleteNode(ctx context.Context, nodeID string) (*core.NodeVersion, error) {
	var deleted *core.NodeVersion
	err := e.withRetry(ctx, "delete node", func(ctx context.Context) error {
		open, err := e.store.OpenNodeVersion(ctx, nodeID)
		if err != nil {
			return err
		}
		if open.Tombstone() {
			return &core.NotFoundError{Kind: core.KindNode, ID: nodeID, DeletedBefore: true, DeletedAt: open.ValidFrom}
		}

		now := e.nextInstant(open.ValidFrom)
		next := &core.NodeVersion{
			VersionID: e.ids.NewVersionID(),
			NodeID:    nodeID,
			Label:     open.Label,
			Operation: core.OpDelete,
			Timestamp: now,
			ValidFrom: now,
		}
		if err := e.store.CommitNodeVersion(ctx, open.VersionID, next); err != nil {
			return err
		}
		deleted = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("node deleted", "node_id", nodeID)
	return deleted, nil
}
