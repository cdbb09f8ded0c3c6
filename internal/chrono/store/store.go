// Package store persists the append-only version log. Store is a capability
// interface over a durable, transactional backing store; the versioning
// engine requires only atomic conditional close-and-insert writes, grouped
// atomic commits, and temporal reads. Three backends implement it: SQLite
// (primary), BadgerDB, and Neo4j.
package store

import (
	"context"
	"time"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// EdgeCommit is one member of an atomic edge-group write. An empty
// ExpectedOpenVersionID means the edge is being created (first version);
// otherwise the named open version is conditionally closed before Next is
// inserted.
type EdgeCommit struct {
	ExpectedOpenVersionID string
	Next                  *core.EdgeVersion
}

// Store is the storage adapter contract.
//
// Write methods are atomic: the conditional close and the insert either
// both happen or neither does, and a grouped commit applies all members or
// none. A conditional close whose expected version is no longer open fails
// with core.ErrConflict. Edge writes for CREATE and UPDATE re-check that
// both endpoints exist (open version, not a tombstone) inside the same
// transaction and fail with *core.EndpointGoneError otherwise; DELETE
// skips the check so edges can be tombstoned after an endpoint is gone.
//
// Read methods treat the version log as the sole source of truth and never
// consult derived state.
type Store interface {
	Close(ctx context.Context) error

	// InsertNodeVersion writes the first version of a node. Any existing
	// version under the same id fails with *core.IdentityConflictError.
	InsertNodeVersion(ctx context.Context, v *core.NodeVersion) error

	// CommitNodeVersion atomically closes the expected open version
	// (valid_to = next.ValidFrom) and inserts next.
	CommitNodeVersion(ctx context.Context, expectedOpenVersionID string, next *core.NodeVersion) error

	// InsertEdgeVersion writes the first version of an edge.
	InsertEdgeVersion(ctx context.Context, v *core.EdgeVersion) error

	// CommitEdgeVersion is CommitNodeVersion for edges.
	CommitEdgeVersion(ctx context.Context, expectedOpenVersionID string, next *core.EdgeVersion) error

	// CommitEdgeGroup applies all members as one transaction.
	CommitEdgeGroup(ctx context.Context, commits []EdgeCommit) error

	// OpenNodeVersion returns the node's open version, tombstone included.
	OpenNodeVersion(ctx context.Context, nodeID string) (*core.NodeVersion, error)

	// OpenEdgeVersion returns the edge's open version, tombstone included.
	OpenEdgeVersion(ctx context.Context, edgeID string) (*core.EdgeVersion, error)

	// NodeVersionAt returns the version record effective at t, tombstone
	// included; callers decide how to present tombstones.
	NodeVersionAt(ctx context.Context, nodeID string, t time.Time) (*core.NodeVersion, error)

	// EdgeVersionAt is NodeVersionAt for edges.
	EdgeVersionAt(ctx context.Context, edgeID string, t time.Time) (*core.EdgeVersion, error)

	// NodeHistory returns all versions of a node, earliest first.
	NodeHistory(ctx context.Context, nodeID string) ([]core.NodeVersion, error)

	// EdgeHistory returns all versions of an edge, earliest first.
	EdgeHistory(ctx context.Context, edgeID string) ([]core.EdgeVersion, error)

	// NeighborsAt returns the (edge, far node) pairs adjacent to nodeID
	// where both ends are live at t, ordered by edge id. An empty edgeTypes
	// slice matches every type.
	NeighborsAt(ctx context.Context, nodeID string, t time.Time, direction core.Direction, edgeTypes []string) ([]core.Neighbor, error)

	// EdgesByComposite returns the live open member edges of a composite
	// group, ordered by edge id.
	EdgesByComposite(ctx context.Context, compositeID string) ([]*core.EdgeVersion, error)

	// ReachableAt returns the nodes reachable from startID over outgoing
	// edges live at t, within maxDepth hops, ordered by node id. The start
	// node is included when it is live at t.
	ReachableAt(ctx context.Context, startID string, t time.Time, maxDepth int, edgeTypes []string) ([]*core.Node, error)
}
