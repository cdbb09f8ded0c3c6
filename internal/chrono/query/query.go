// Package query implements point-in-time reads over the version log:
// current state, as-of snapshots, history listings, neighbor lookups, and
// bounded traversal. Reads are non-blocking with respect to writers; a
// query sees whichever versions had committed when it ran.
package query

import (
	"context"
	"time"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
	"github.com/chronograph-db/chronograph/internal/chrono/store"
)

// Traversal depth bounds. Requests above the cap are clamped rather than
// rejected.
const (
	DefaultTraverseDepth = 3
	MaxTraverseDepth     = 10
)

// Service answers temporal queries against a store.
type Service struct {
	store store.Store
	clock core.Clock
}

// New builds a query service over the given store.
func New(st store.Store) *Service {
	return &Service{store: st, clock: core.SystemClock()}
}

// SetClock replaces the time source. Tests use it to pin "now".
func (s *Service) SetClock(c core.Clock) { s.clock = c }

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now().UTC()
	}
	return t
}

// Node returns the node as of t. A zero t means the current state. A
// tombstone effective at t fails with not-found carrying the deletion
// instant.
func (s *Service) Node(ctx context.Context, nodeID string, t time.Time) (*core.Node, error) {
	t = s.at(t)
	v, err := s.store.NodeVersionAt(ctx, nodeID, t)
	if err != nil {
		return nil, err
	}
	if v.Tombstone() {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID, DeletedBefore: true, DeletedAt: v.ValidFrom}
	}
	return core.NodeView(v, t).Node, nil
}

// Edge returns the edge as of t. A zero t means the current state.
func (s *Service) Edge(ctx context.Context, edgeID string, t time.Time) (*core.Edge, error) {
	t = s.at(t)
	v, err := s.store.EdgeVersionAt(ctx, edgeID, t)
	if err != nil {
		return nil, err
	}
	if v.Tombstone() {
		return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID, DeletedBefore: true, DeletedAt: v.ValidFrom}
	}
	return core.EdgeView(v, t).Edge, nil
}

// Entity resolves an id of unknown kind as of t. Identifiers are issued
// from one space, so an id matches at most one of the two kinds.
func (s *Service) Entity(ctx context.Context, id string, t time.Time) (*core.EntityView, error) {
	t = s.at(t)

	nv, err := s.store.NodeVersionAt(ctx, id, t)
	if err == nil {
		if nv.Tombstone() {
			return nil, &core.NotFoundError{Kind: core.KindNode, ID: id, DeletedBefore: true, DeletedAt: nv.ValidFrom}
		}
		return core.NodeView(nv, t), nil
	}
	if !core.IsNotFound(err) {
		return nil, err
	}

	ev, err := s.store.EdgeVersionAt(ctx, id, t)
	if err == nil {
		if ev.Tombstone() {
			return nil, &core.NotFoundError{Kind: core.KindEdge, ID: id, DeletedBefore: true, DeletedAt: ev.ValidFrom}
		}
		return core.EdgeView(ev, t), nil
	}
	if !core.IsNotFound(err) {
		return nil, err
	}

	return nil, &core.NotFoundError{Kind: core.KindEntity, ID: id}
}

// History returns every version of the entity, earliest first, tombstones
// included.
func (s *Service) History(ctx context.Context, id string) ([]core.Version, error) {
	nvs, err := s.store.NodeHistory(ctx, id)
	if err == nil {
		versions := make([]core.Version, 0, len(nvs))
		for _, v := range nvs {
			versions = append(versions, core.Version{
				Kind:      core.KindNode,
				VersionID: v.VersionID,
				EntityID:  v.NodeID,
				Operation: v.Operation,
				Content:   v.Content,
				Timestamp: v.Timestamp,
				ValidFrom: v.ValidFrom,
				ValidTo:   v.ValidTo,
			})
		}
		return versions, nil
	}
	if !core.IsNotFound(err) {
		return nil, err
	}

	evs, err := s.store.EdgeHistory(ctx, id)
	if err == nil {
		versions := make([]core.Version, 0, len(evs))
		for _, v := range evs {
			versions = append(versions, core.Version{
				Kind:      core.KindEdge,
				VersionID: v.VersionID,
				EntityID:  v.EdgeID,
				Operation: v.Operation,
				Content:   v.Content,
				Timestamp: v.Timestamp,
				ValidFrom: v.ValidFrom,
				ValidTo:   v.ValidTo,
			})
		}
		return versions, nil
	}
	if !core.IsNotFound(err) {
		return nil, err
	}

	return nil, &core.NotFoundError{Kind: core.KindEntity, ID: id}
}

// NeighborOptions bounds a neighbor lookup. The zero value asks for the
// current outgoing neighbors over every edge type.
type NeighborOptions struct {
	Direction core.Direction
	EdgeTypes []string
	AsOf      time.Time
}

// Neighbors returns the edges adjacent to the node at the query instant
// paired with the nodes on their far side, ordered by edge id. Fails with
// not-found when the start node does not exist at that instant. The result
// is a finite snapshot; calling again restarts from current state.
func (s *Service) Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]core.Neighbor, error) {
	t := s.at(opts.AsOf)
	direction := opts.Direction
	if direction == "" {
		direction = core.DirectionOut
	}

	v, err := s.store.NodeVersionAt(ctx, nodeID, t)
	if err != nil {
		return nil, err
	}
	if v.Tombstone() {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID, DeletedBefore: true, DeletedAt: v.ValidFrom}
	}

	return s.store.NeighborsAt(ctx, nodeID, t, direction, opts.EdgeTypes)
}

// TraverseOptions bounds a traversal. The zero value walks outgoing edges
// from current state to DefaultTraverseDepth.
type TraverseOptions struct {
	MaxDepth  int
	EdgeTypes []string
	AsOf      time.Time
}

// Traverse returns the nodes reachable from the start node over outgoing
// edges live at the query instant, start included, ordered by node id.
func (s *Service) Traverse(ctx context.Context, startID string, opts TraverseOptions) ([]*core.Node, error) {
	t := s.at(opts.AsOf)
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = DefaultTraverseDepth
	}
	if depth > MaxTraverseDepth {
		depth = MaxTraverseDepth
	}

	v, err := s.store.NodeVersionAt(ctx, startID, t)
	if err != nil {
		return nil, err
	}
	if v.Tombstone() {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: startID, DeletedBefore: true, DeletedAt: v.ValidFrom}
	}

	return s.store.ReachableAt(ctx, startID, t, depth, opts.EdgeTypes)
}

// Composite returns the live members of a composite group with the group's
// logic type.
func (s *Service) Composite(ctx context.Context, compositeID string) (*core.Composite, error) {
	members, err := s.store.EdgesByComposite(ctx, compositeID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, &core.NotFoundError{Kind: core.KindComposite, ID: compositeID}
	}

	now := s.clock.Now().UTC()
	logic, _ := members[0].Content[core.PropLogicType].(string)
	edges := make([]*core.Edge, 0, len(members))
	for _, m := range members {
		edges = append(edges, core.EdgeView(m, now).Edge)
	}
	return &core.Composite{ID: compositeID, LogicType: core.LogicType(logic), Edges: edges}, nil
}
