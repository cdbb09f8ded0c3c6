package engine

import (
	"context"
	"fmt"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// EdgeInput describes an edge create request, or one member of a composite
// group.
type EdgeInput struct {
	Type       string
	SourceID   string
	TargetID   string
	Properties core.Properties
	Notes      string
}

// endpointLabels resolves both endpoint labels for the endpoint-pair rule.
// Labels come from the open version whether or not the node is live; a node
// that never existed fails with not-found here, while a deleted one is
// caught by the store's commit-time liveness check.
func (e *Engine) endpointLabels(ctx context.Context, sourceID, targetID string) (string, string, error) {
	src, err := e.store.OpenNodeVersion(ctx, sourceID)
	if err != nil {
		return "", "", err
	}
	dst, err := e.store.OpenNodeVersion(ctx, targetID)
	if err != nil {
		return "", "", err
	}
	return src.Label, dst.Label, nil
}

// rejectReserved fails when the caller supplies a property the engine
// manages itself.
func rejectReserved(edgeType string, props core.Properties, keys ...string) error {
	for _, k := range keys {
		if _, ok := props[k]; ok {
			return &core.SchemaError{
				Kind:   core.ErrKindUnknownProperty,
				Label:  edgeType,
				Field:  k,
				Detail: "assigned by composite operations",
			}
		}
	}
	return nil
}

// CreateEdge validates the input and writes the edge's first version. Both
// endpoints must exist when the version commits.
func (e *Engine) CreateEdge(ctx context.Context, in EdgeInput) (*core.Edge, error) {
	if err := rejectReserved(in.Type, in.Properties, core.PropCompositeID); err != nil {
		return nil, err
	}

	var created *core.Edge
	err := e.withRetry(ctx, "create edge", func(ctx context.Context) error {
		srcLabel, dstLabel, err := e.endpointLabels(ctx, in.SourceID, in.TargetID)
		if err != nil {
			return err
		}
		content, err := e.registry.NormalizeEdge(in.Type, srcLabel, dstLabel, in.Properties)
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		v := &core.EdgeVersion{
			VersionID: e.ids.NewVersionID(),
			EdgeID:    e.ids.NewID(),
			EdgeType:  in.Type,
			SourceID:  in.SourceID,
			TargetID:  in.TargetID,
			Operation: core.OpCreate,
			Content:   content,
			Notes:     in.Notes,
			Timestamp: now,
			ValidFrom: now,
		}
		if err := e.store.InsertEdgeVersion(ctx, v); err != nil {
			return err
		}
		created = core.EdgeView(v, now).Edge
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("edge created",
		"edge_id", created.ID,
		"edge_type", created.Type,
		"source", created.SourceID,
		"target", created.TargetID,
	)
	return created, nil
}

// UpdateEdge appends an UPDATE version with a full replacement property set
// and notes. Type and endpoints are fixed at creation. On composite
// members the group-managed properties are preserved and cannot be
// supplied.
func (e *Engine) UpdateEdge(ctx context.Context, edgeID string, props core.Properties, notes string) (*core.Edge, error) {
	var updated *core.Edge
	err := e.withRetry(ctx, "update edge", func(ctx context.Context) error {
		open, err := e.store.OpenEdgeVersion(ctx, edgeID)
		if err != nil {
			return err
		}
		if open.Tombstone() {
			return &core.NotFoundError{Kind: core.KindEdge, ID: edgeID, DeletedBefore: true, DeletedAt: open.ValidFrom}
		}

		reserved := []string{core.PropCompositeID}
		if open.CompositeID != "" {
			reserved = append(reserved, core.PropLogicType)
		}
		if err := rejectReserved(open.EdgeType, props, reserved...); err != nil {
			return err
		}

		srcLabel, dstLabel, err := e.endpointLabels(ctx, open.SourceID, open.TargetID)
		if err != nil {
			return err
		}
		content, err := e.registry.NormalizeEdge(open.EdgeType, srcLabel, dstLabel, props)
		if err != nil {
			return err
		}
		if open.CompositeID != "" {
			if lt, ok := open.Content[core.PropLogicType]; ok {
				if content == nil {
					content = core.Properties{}
				}
				content[core.PropLogicType] = lt
			}
		}

		now := e.nextInstant(open.ValidFrom)
		next := &core.EdgeVersion{
			VersionID:   e.ids.NewVersionID(),
			EdgeID:      edgeID,
			EdgeType:    open.EdgeType,
			SourceID:    open.SourceID,
			TargetID:    open.TargetID,
			Operation:   core.OpUpdate,
			Content:     content,
			Notes:       notes,
			CompositeID: open.CompositeID,
			Timestamp:   now,
			ValidFrom:   now,
		}
		if err := e.store.CommitEdgeVersion(ctx, open.VersionID, next); err != nil {
			return err
		}
		updated = core.EdgeView(next, now).Edge
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("edge updated", "edge_id", edgeID, "version_id", updated.VersionID)
	return updated, nil
}

// DeleteEdge appends a DELETE tombstone and returns it. Composite members
// cannot be deleted one at a time; delete the group instead.
func (e *Engine) DeleteEdge(ctx context.Context, edgeID string) (*core.EdgeVersion, error) {
	var deleted *core.EdgeVersion
	err := e.withRetry(ctx, "delete edge", func(ctx context.Context) error {
		open, err := e.store.OpenEdgeVersion(ctx, edgeID)
		if err != nil {
			return err
		}
		if open.Tombstone() {
			return &core.NotFoundError{Kind: core.KindEdge, ID: edgeID, DeletedBefore: true, DeletedAt: open.ValidFrom}
		}
		if open.CompositeID != "" {
			return fmt.Errorf("deleting edge %s: %w", edgeID, core.ErrCompositeMember)
		}

		now := e.nextInstant(open.ValidFrom)
		next := &core.EdgeVersion{
			VersionID: e.ids.NewVersionID(),
			EdgeID:    edgeID,
			EdgeType:  open.EdgeType,
			SourceID:  open.SourceID,
			TargetID:  open.TargetID,
			Operation: core.OpDelete,
			Timestamp: now,
			ValidFrom: now,
		}
		if err := e.store.CommitEdgeVersion(ctx, open.VersionID, next); err != nil {
			return err
		}
		deleted = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("edge deleted", "edge_id", edgeID)
	return deleted, nil
}
