package engine

import (
	"context"
	"fmt"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
	"github.com/chronograph-db/chronograph/internal/chrono/store"
)

// CompositeInput describes an atomic edge-group create request. Every
// member edge is written in one transaction and carries the group's logic
// type; either all members commit or none do.
type CompositeInput struct {
	LogicType core.LogicType
	Members   []EdgeInput
}

// CreateComposite validates all members, mints a shared composite id, and
// commits the group atomically.
func (e *Engine) CreateComposite(ctx context.Context, in CompositeInput) (*core.Composite, error) {
	if _, ok := core.ParseLogicType(string(in.LogicType)); !ok {
		return nil, &core.SchemaError{
			Kind:   core.ErrKindTypeMismatch,
			Label:  "composite",
			Field:  core.PropLogicType,
			Detail: fmt.Sprintf("unknown logic type %q", in.LogicType),
		}
	}
	if len(in.Members) == 0 {
		return nil, &core.SchemaError{
			Kind:  core.ErrKindMissingRequired,
			Label: "composite",
			Field: "members",
		}
	}
	for _, m := range in.Members {
		if err := rejectReserved(m.Type, m.Properties, core.PropCompositeID, core.PropLogicType); err != nil {
			return nil, err
		}
	}

	compositeID := e.ids.NewCompositeID()
	var created *core.Composite
	err := e.withRetry(ctx, "create composite", func(ctx context.Context) error {
		now := e.clock.Now().UTC()
		commits := make([]store.EdgeCommit, 0, len(in.Members))
		edges := make([]*core.Edge, 0, len(in.Members))

		for _, m := range in.Members {
			srcLabel, dstLabel, err := e.endpointLabels(ctx, m.SourceID, m.TargetID)
			if err != nil {
				return err
			}
			content, err := e.registry.NormalizeEdge(m.Type, srcLabel, dstLabel, m.Properties)
			if err != nil {
				return err
			}
			if content == nil {
				content = core.Properties{}
			}
			content[core.PropLogicType] = string(in.LogicType)

			v := &core.EdgeVersion{
				VersionID:   e.ids.NewVersionID(),
				EdgeID:      e.ids.NewID(),
				EdgeType:    m.Type,
				SourceID:    m.SourceID,
				TargetID:    m.TargetID,
				Operation:   core.OpCreate,
				Content:     content,
				Notes:       m.Notes,
				CompositeID: compositeID,
				Timestamp:   now,
				ValidFrom:   now,
			}
			commits = append(commits, store.EdgeCommit{Next: v})
			edges = append(edges, core.EdgeView(v, now).Edge)
		}

		if err := e.store.CommitEdgeGroup(ctx, commits); err != nil {
			return err
		}
		created = &core.Composite{ID: compositeID, LogicType: in.LogicType, Edges: edges}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("composite created",
		"composite_id", created.ID,
		"logic_type", created.LogicType,
		"members", len(created.Edges),
	)
	return created, nil
}

// DeleteComposite tombstones every live member of the group in one
// transaction.
func (e *Engine) DeleteComposite(ctx context.Context, compositeID string) error {
	err := e.withRetry(ctx, "delete composite", func(ctx context.Context) error {
		members, err := e.store.EdgesByComposite(ctx, compositeID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return &core.NotFoundError{Kind: core.KindComposite, ID: compositeID}
		}

		commits := make([]store.EdgeCommit, 0, len(members))
		for _, m := range members {
			now := e.nextInstant(m.ValidFrom)
			next := &core.EdgeVersion{
				VersionID:   e.ids.NewVersionID(),
				EdgeID:      m.EdgeID,
				EdgeType:    m.EdgeType,
				SourceID:    m.SourceID,
				TargetID:    m.TargetID,
				Operation:   core.OpDelete,
				CompositeID: m.CompositeID,
				Timestamp:   now,
				ValidFrom:   now,
			}
			commits = append(commits, store.EdgeCommit{ExpectedOpenVersionID: m.VersionID, Next: next})
		}
		return e.store.CommitEdgeGroup(ctx, commits)
	})
	if err != nil {
		return err
	}

	e.logger.Debug("composite deleted", "composite_id", compositeID)
	return nil
}
