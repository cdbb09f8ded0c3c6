// Package core holds the domain types and error taxonomy shared by the
// schema registry, versioning engine, query layer, and storage backends.
package core

import "time"

// EntityKind distinguishes nodes from edges in APIs that accept either.
type EntityKind string

const (
	KindNode EntityKind = "node"
	KindEdge EntityKind = "edge"

	// KindComposite appears only in not-found errors for group lookups.
	KindComposite EntityKind = "composite"

	// KindEntity appears in not-found errors when a kind-agnostic lookup
	// matched neither a node nor an edge.
	KindEntity EntityKind = "entity"
)

// Operation identifies what a version record did to its entity.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Direction selects which edges a neighbor query follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// ParseDirection maps the wire form to a Direction, defaulting to outgoing.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "", string(DirectionOut):
		return DirectionOut, true
	case string(DirectionIn):
		return DirectionIn, true
	case string(DirectionBoth):
		return DirectionBoth, true
	}
	return "", false
}

// LogicType enumerates the compound connectives a composite group can carry.
type LogicType string

const (
	LogicAnd  LogicType = "AND"
	LogicOr   LogicType = "OR"
	LogicNot  LogicType = "NOT"
	LogicNand LogicType = "NAND"
)

// ParseLogicType validates the wire form of a logic type.
func ParseLogicType(s string) (LogicType, bool) {
	switch LogicType(s) {
	case LogicAnd, LogicOr, LogicNot, LogicNand:
		return LogicType(s), true
	}
	return "", false
}

// Reserved property names on edges. logic_type is schema-validated like any
// other enum property; composite_id is assigned only by a composite commit.
const (
	PropLogicType   = "logic_type"
	PropCompositeID = "composite_id"
)

// Properties is a property map as it appears in version content. Values are
// the JSON scalar types plus time.Time for time-typed schema properties.
type Properties map[string]any

// Clone returns a shallow copy, safe for the scalar values stored here.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NodeVersion is one immutable record in a node's append-only history.
// ValidTo is the zero time while the record is the open (effective) version.
type NodeVersion struct {
	VersionID string     `json:"version_id"`
	NodeID    string     `json:"node_id"`
	Label     string     `json:"node_label"`
	Operation Operation  `json:"operation"`
	Content   Properties `json:"content,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   time.Time  `json:"valid_to"`
}

// Open reports whether this record is the entity's open version.
func (v *NodeVersion) Open() bool { return v.ValidTo.IsZero() }

// Tombstone reports whether this record marks the entity deleted.
func (v *NodeVersion) Tombstone() bool { return v.Operation == OpDelete }

// EdgeVersion is one immutable record in an edge's append-only history.
// CompositeID mirrors the composite_id property when the edge belongs to a
// composite group; the dedicated field exists so stores can index it.
type EdgeVersion struct {
	VersionID   string     `json:"version_id"`
	EdgeID      string     `json:"edge_id"`
	EdgeType    string     `json:"edge_type"`
	SourceID    string     `json:"source_node_id"`
	TargetID    string     `json:"target_node_id"`
	Operation   Operation  `json:"operation"`
	Content     Properties `json:"content,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CompositeID string     `json:"composite_id,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     time.Time  `json:"valid_to"`
}

// Open reports whether this record is the edge's open version.
func (v *EdgeVersion) Open() bool { return v.ValidTo.IsZero() }

// Tombstone reports whether this record marks the edge deleted.
func (v *EdgeVersion) Tombstone() bool { return v.Operation == OpDelete }

// Node is the materialized view of a node at some instant, derived from the
// version that was effective then.
type Node struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Properties Properties `json:"properties,omitempty"`
	VersionID  string     `json:"version_id"`
	ValidFrom  time.Time  `json:"valid_from"`
}

// Edge is the materialized view of an edge at some instant.
type Edge struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	SourceID    string     `json:"source_node_id"`
	TargetID    string     `json:"target_node_id"`
	Properties  Properties `json:"properties,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CompositeID string     `json:"composite_id,omitempty"`
	VersionID   string     `json:"version_id"`
	ValidFrom   time.Time  `json:"valid_from"`
}

// EntityView is the result of a point-in-time lookup. Exactly one of Node
// and Edge is set, matching Kind.
type EntityView struct {
	Kind EntityKind `json:"kind"`
	AsOf time.Time  `json:"as_of"`
	Node *Node      `json:"node,omitempty"`
	Edge *Edge      `json:"edge,omitempty"`
}

// NodeView wraps a node version as an EntityView at the given instant.
func NodeView(v *NodeVersion, asOf time.Time) *EntityView {
	return &EntityView{
		Kind: KindNode,
		AsOf: asOf,
		Node: &Node{
			ID:         v.NodeID,
			Label:      v.Label,
			Properties: v.Content,
			VersionID:  v.VersionID,
			ValidFrom:  v.ValidFrom,
		},
	}
}

// EdgeView wraps an edge version as an EntityView at the given instant.
func EdgeView(v *EdgeVersion, asOf time.Time) *EntityView {
	return &EntityView{
		Kind: KindEdge,
		AsOf: asOf,
		Edge: &Edge{
			ID:          v.EdgeID,
			Type:        v.EdgeType,
			SourceID:    v.SourceID,
			TargetID:    v.TargetID,
			Properties:  v.Content,
			Notes:       v.Notes,
			CompositeID: v.CompositeID,
			VersionID:   v.VersionID,
			ValidFrom:   v.ValidFrom,
		},
	}
}

// Version is a kind-agnostic view of a version record for history listings.
type Version struct {
	Kind      EntityKind `json:"kind"`
	VersionID string     `json:"version_id"`
	EntityID  string     `json:"entity_id"`
	Operation Operation  `json:"operation"`
	Content   Properties `json:"content,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   time.Time  `json:"valid_to"`
}

// Neighbor pairs an edge valid at the query instant with the node on its
// far side.
type Neighbor struct {
	Edge *Edge `json:"edge"`
	Node *Node `json:"node"`
}

// Composite is a group of edges created and deleted as one atomic unit,
// sharing a logic type. Edges are ordered by id.
type Composite struct {
	ID        string    `json:"id"`
	LogicType LogicType `json:"logic_type"`
	Edges     []*Edge   `json:"edges"`
}
