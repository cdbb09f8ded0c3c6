package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// Neo4jConfig holds Neo4j connection configuration.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements Store against a Neo4j server. Version records are
// stored as flat :NodeVersion and :EdgeVersion nodes rather than native
// relationships so the append-only log stays the source of truth; intervals
// are integer epoch nanoseconds with null valid_to marking the open version.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j connects to Neo4j, verifies connectivity, and ensures the
// uniqueness constraints and entity-id indexes exist.
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{driver: driver, database: database}

	if err := s.ensureSchema(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *Neo4jStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT node_version_id IF NOT EXISTS FOR (v:NodeVersion) REQUIRE v.version_id IS UNIQUE`,
		`CREATE CONSTRAINT edge_version_id IF NOT EXISTS FOR (v:EdgeVersion) REQUIRE v.version_id IS UNIQUE`,
		`CREATE INDEX node_version_entity IF NOT EXISTS FOR (v:NodeVersion) ON (v.node_id)`,
		`CREATE INDEX edge_version_entity IF NOT EXISTS FOR (v:EdgeVersion) ON (v.edge_id)`,
		`CREATE INDEX edge_version_source IF NOT EXISTS FOR (v:EdgeVersion) ON (v.source_node_id)`,
		`CREATE INDEX edge_version_target IF NOT EXISTS FOR (v:EdgeVersion) ON (v.target_node_id)`,
		`CREATE INDEX edge_version_composite IF NOT EXISTS FOR (v:EdgeVersion) ON (v.composite_id)`,
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// Close closes the Neo4j connection.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// InsertNodeVersion writes the first version of a node.
func (s *Neo4jStore) InsertNodeVersion(ctx context.Context, v *core.NodeVersion) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		taken, err := entityExistsTx(ctx, tx, "NodeVersion", "node_id", v.NodeID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &core.IdentityConflictError{Kind: core.KindNode, ID: v.NodeID}
		}
		return nil, createNodeVersionTx(ctx, tx, v)
	})
	return err
}

// CommitNodeVersion atomically closes the expected open version and inserts
// the next one.
func (s *Neo4jStore) CommitNodeVersion(ctx context.Context, expectedOpenVersionID string, next *core.NodeVersion) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := closeVersionTxn(ctx, tx, "NodeVersion", expectedOpenVersionID, next.ValidFrom); err != nil {
			return nil, err
		}
		return nil, createNodeVersionTx(ctx, tx, next)
	})
	return err
}

// InsertEdgeVersion writes the first version of an edge.
func (s *Neo4jStore) InsertEdgeVersion(ctx context.Context, v *core.EdgeVersion) error {
	return s.CommitEdgeGroup(ctx, []EdgeCommit{{Next: v}})
}

// CommitEdgeVersion atomically closes the expected open version and inserts
// the next one.
func (s *Neo4jStore) CommitEdgeVersion(ctx context.Context, expectedOpenVersionID string, next *core.EdgeVersion) error {
	return s.CommitEdgeGroup(ctx, []EdgeCommit{{ExpectedOpenVersionID: expectedOpenVersionID, Next: next}})
}

// CommitEdgeGroup applies all members in one write transaction.
func (s *Neo4jStore) CommitEdgeGroup(ctx context.Context, commits []EdgeCommit) error {
	if len(commits) == 0 {
		return nil
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, c := range commits {
			if err := applyEdgeCommitNeo4j(ctx, tx, c); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func applyEdgeCommitNeo4j(ctx context.Context, tx neo4j.ManagedTransaction, c EdgeCommit) error {
	v := c.Next
	if c.ExpectedOpenVersionID == "" {
		taken, err := entityExistsTx(ctx, tx, "EdgeVersion", "edge_id", v.EdgeID)
		if err != nil {
			return err
		}
		if taken {
			return &core.IdentityConflictError{Kind: core.KindEdge, ID: v.EdgeID}
		}
	} else if err := closeVersionTxn(ctx, tx, "EdgeVersion", c.ExpectedOpenVersionID, v.ValidFrom); err != nil {
		return err
	}

	if v.Operation != core.OpDelete {
		for _, nodeID := range []string{v.SourceID, v.TargetID} {
			live, err := nodeLiveNeo4j(ctx, tx, nodeID)
			if err != nil {
				return err
			}
			if !live {
				edgeID := ""
				if c.ExpectedOpenVersionID != "" {
					edgeID = v.EdgeID
				}
				return &core.EndpointGoneError{EdgeID: edgeID, NodeID: nodeID}
			}
		}
	}

	return createEdgeVersionTx(ctx, tx, v)
}

// closeVersionTxn conditionally sets valid_to on the expected open version.
// Zero matched records means another writer got there first.
func closeVersionTxn(ctx context.Context, tx neo4j.ManagedTransaction, label, versionID string, validTo time.Time) error {
	query := fmt.Sprintf(`
		MATCH (v:%s {version_id: $version_id})
		WHERE v.valid_to IS NULL
		SET v.valid_to = $valid_to
		RETURN v.version_id
	`, label)

	result, err := tx.Run(ctx, query, map[string]any{
		"version_id": versionID,
		"valid_to":   nanos(validTo),
	})
	if err != nil {
		return fmt.Errorf("closing version %s: %w", versionID, err)
	}
	if !result.Next(ctx) {
		return fmt.Errorf("closing version %s: %w", versionID, core.ErrConflict)
	}
	return nil
}

func entityExistsTx(ctx context.Context, tx neo4j.ManagedTransaction, label, idField, id string) (bool, error) {
	query := fmt.Sprintf(`MATCH (v:%s {%s: $id}) RETURN v.version_id LIMIT 1`, label, idField)
	result, err := tx.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("probing %s id: %w", idField, err)
	}
	return result.Next(ctx), nil
}

func nodeLiveNeo4j(ctx context.Context, tx neo4j.ManagedTransaction, nodeID string) (bool, error) {
	query := `
		MATCH (v:NodeVersion {node_id: $node_id})
		WHERE v.valid_to IS NULL AND v.operation <> 'DELETE'
		RETURN v.version_id
	`
	result, err := tx.Run(ctx, query, map[string]any{"node_id": nodeID})
	if err != nil {
		return false, fmt.Errorf("checking endpoint %s: %w", nodeID, err)
	}
	return result.Next(ctx), nil
}

func createNodeVersionTx(ctx context.Context, tx neo4j.ManagedTransaction, v *core.NodeVersion) error {
	// Neo4j properties cannot hold nested maps, so content travels as a
	// JSON string.
	contentJSON, err := json.Marshal(v.Content)
	if err != nil {
		return fmt.Errorf("marshaling content: %w", err)
	}

	query := `
		CREATE (v:NodeVersion {
			version_id: $version_id,
			node_id: $node_id,
			node_label: $node_label,
			operation: $operation,
			content: $content,
			timestamp: $timestamp,
			valid_from: $valid_from,
			valid_to: $valid_to
		})
	`

	params := map[string]any{
		"version_id": v.VersionID,
		"node_id":    v.NodeID,
		"node_label": v.Label,
		"operation":  string(v.Operation),
		"content":    string(contentJSON),
		"timestamp":  nanos(v.Timestamp),
		"valid_from": nanos(v.ValidFrom),
		"valid_to":   nil,
	}

	if _, err := tx.Run(ctx, query, params); err != nil {
		return fmt.Errorf("inserting node version %s: %w", v.VersionID, err)
	}
	return nil
}

func createEdgeVersionTx(ctx context.Context, tx neo4j.ManagedTransaction, v *core.EdgeVersion) error {
	contentJSON, err := json.Marshal(v.Content)
	if err != nil {
		return fmt.Errorf("marshaling content: %w", err)
	}

	query := `
		CREATE (v:EdgeVersion {
			version_id: $version_id,
			edge_id: $edge_id,
			edge_type: $edge_type,
			source_node_id: $source_node_id,
			target_node_id: $target_node_id,
			operation: $operation,
			content: $content,
			notes: $notes,
			composite_id: $composite_id,
			timestamp: $timestamp,
			valid_from: $valid_from,
			valid_to: $valid_to
		})
	`

	params := map[string]any{
		"version_id":     v.VersionID,
		"edge_id":        v.EdgeID,
		"edge_type":      v.EdgeType,
		"source_node_id": v.SourceID,
		"target_node_id": v.TargetID,
		"operation":      string(v.Operation),
		"content":        string(contentJSON),
		"notes":          v.Notes,
		"composite_id":   v.CompositeID,
		"timestamp":      nanos(v.Timestamp),
		"valid_from":     nanos(v.ValidFrom),
		"valid_to":       nil,
	}

	if _, err := tx.Run(ctx, query, params); err != nil {
		return fmt.Errorf("inserting edge version %s: %w", v.VersionID, err)
	}
	return nil
}

// OpenNodeVersion returns the node's open version, tombstone included.
func (s *Neo4jStore) OpenNodeVersion(ctx context.Context, nodeID string) (*core.NodeVersion, error) {
	query := `
		MATCH (v:NodeVersion {node_id: $id})
		WHERE v.valid_to IS NULL
		RETURN v
	`
	return s.readNodeVersion(ctx, nodeID, query, map[string]any{"id": nodeID})
}

// OpenEdgeVersion returns the edge's open version, tombstone included.
func (s *Neo4jStore) OpenEdgeVersion(ctx context.Context, edgeID string) (*core.EdgeVersion, error) {
	query := `
		MATCH (v:EdgeVersion {edge_id: $id})
		WHERE v.valid_to IS NULL
		RETURN v
	`
	return s.readEdgeVersion(ctx, edgeID, query, map[string]any{"id": edgeID})
}

// NodeVersionAt returns the version record effective at t.
func (s *Neo4jStore) NodeVersionAt(ctx context.Context, nodeID string, t time.Time) (*core.NodeVersion, error) {
	query := `
		MATCH (v:NodeVersion {node_id: $id})
		WHERE v.valid_from <= $at AND (v.valid_to IS NULL OR v.valid_to > $at)
		RETURN v
	`
	return s.readNodeVersion(ctx, nodeID, query, map[string]any{"id": nodeID, "at": nanos(t)})
}

// EdgeVersionAt returns the version record effective at t.
func (s *Neo4jStore) EdgeVersionAt(ctx context.Context, edgeID string, t time.Time) (*core.EdgeVersion, error) {
	query := `
		MATCH (v:EdgeVersion {edge_id: $id})
		WHERE v.valid_from <= $at AND (v.valid_to IS NULL OR v.valid_to > $at)
		RETURN v
	`
	return s.readEdgeVersion(ctx, edgeID, query, map[string]any{"id": edgeID, "at": nanos(t)})
}

func (s *Neo4jStore) readNodeVersion(ctx context.Context, nodeID, query string, params map[string]any) (*core.NodeVersion, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
		}
		record := result.Record()
		value, _ := record.Get("v")
		return nodeVersionFromProps(value.(neo4j.Node).Props)
	})
	if err != nil {
		return nil, err
	}
	return result.(*core.NodeVersion), nil
}

func (s *Neo4jStore) readEdgeVersion(ctx context.Context, edgeID, query string, params map[string]any) (*core.EdgeVersion, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
		}
		record := result.Record()
		value, _ := record.Get("v")
		return edgeVersionFromProps(value.(neo4j.Node).Props)
	})
	if err != nil {
		return nil, err
	}
	return result.(*core.EdgeVersion), nil
}

// NodeHistory returns all versions of a node, earliest first.
func (s *Neo4jStore) NodeHistory(ctx context.Context, nodeID string) ([]core.NodeVersion, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (v:NodeVersion {node_id: $id})
			RETURN v
			ORDER BY v.valid_from
		`
		result, err := tx.Run(ctx, query, map[string]any{"id": nodeID})
		if err != nil {
			return nil, err
		}

		var versions []core.NodeVersion
		for result.Next(ctx) {
			value, _ := result.Record().Get("v")
			v, err := nodeVersionFromProps(value.(neo4j.Node).Props)
			if err != nil {
				return nil, err
			}
			versions = append(versions, *v)
		}
		if len(versions) == 0 {
			return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
		}
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]core.NodeVersion), nil
}

// EdgeHistory returns all versions of an edge, earliest first.
func (s *Neo4jStore) EdgeHistory(ctx context.Context, edgeID string) ([]core.EdgeVersion, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (v:EdgeVersion {edge_id: $id})
			RETURN v
			ORDER BY v.valid_from
		`
		result, err := tx.Run(ctx, query, map[string]any{"id": edgeID})
		if err != nil {
			return nil, err
		}

		var versions []core.EdgeVersion
		for result.Next(ctx) {
			value, _ := result.Record().Get("v")
			v, err := edgeVersionFromProps(value.(neo4j.Node).Props)
			if err != nil {
				return nil, err
			}
			versions = append(versions, *v)
		}
		if len(versions) == 0 {
			return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
		}
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]core.EdgeVersion), nil
}

// NeighborsAt returns (edge, far node) pairs live at t, ordered by edge id.
func (s *Neo4jStore) NeighborsAt(ctx context.Context, nodeID string, t time.Time, direction core.Direction, edgeTypes []string) ([]core.Neighbor, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return neighborsAtNeo4j(ctx, tx, nodeID, t, direction, edgeTypes)
	})
	if err != nil {
		return nil, err
	}
	return result.([]core.Neighbor), nil
}

func neighborsAtNeo4j(ctx context.Context, tx neo4j.ManagedTransaction, nodeID string, t time.Time, direction core.Direction, edgeTypes []string) ([]core.Neighbor, error) {
	var neighbors []core.Neighbor

	collect := func(nearField, farField string) error {
		query := fmt.Sprintf(`
			MATCH (e:EdgeVersion {%s: $node_id})
			WHERE e.valid_from <= $at AND (e.valid_to IS NULL OR e.valid_to > $at)
			  AND e.operation <> 'DELETE'
			  AND ($types = [] OR e.edge_type IN $types)
			MATCH (n:NodeVersion {node_id: e.%s})
			WHERE n.valid_from <= $at AND (n.valid_to IS NULL OR n.valid_to > $at)
			  AND n.operation <> 'DELETE'
			RETURN e, n
		`, nearField, farField)

		types := edgeTypes
		if types == nil {
			types = []string{}
		}
		result, err := tx.Run(ctx, query, map[string]any{
			"node_id": nodeID,
			"at":      nanos(t),
			"types":   types,
		})
		if err != nil {
			return err
		}

		for result.Next(ctx) {
			record := result.Record()
			edgeValue, _ := record.Get("e")
			nodeValue, _ := record.Get("n")

			ev, err := edgeVersionFromProps(edgeValue.(neo4j.Node).Props)
			if err != nil {
				return err
			}
			nv, err := nodeVersionFromProps(nodeValue.(neo4j.Node).Props)
			if err != nil {
				return err
			}
			neighbors = append(neighbors, core.Neighbor{
				Edge: core.EdgeView(ev, t).Edge,
				Node: core.NodeView(nv, t).Node,
			})
		}
		return nil
	}

	if direction == core.DirectionOut || direction == core.DirectionBoth {
		if err := collect("source_node_id", "target_node_id"); err != nil {
			return nil, err
		}
	}
	if direction == core.DirectionIn || direction == core.DirectionBoth {
		if err := collect("target_node_id", "source_node_id"); err != nil {
			return nil, err
		}
	}

	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Edge.ID < neighbors[j].Edge.ID })
	return neighbors, nil
}

// EdgesByComposite returns the live open member edges of a composite group.
func (s *Neo4jStore) EdgesByComposite(ctx context.Context, compositeID string) ([]*core.EdgeVersion, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:EdgeVersion {composite_id: $id})
			WHERE e.valid_to IS NULL AND e.operation <> 'DELETE'
			RETURN e
			ORDER BY e.edge_id
		`
		result, err := tx.Run(ctx, query, map[string]any{"id": compositeID})
		if err != nil {
			return nil, err
		}

		var versions []*core.EdgeVersion
		for result.Next(ctx) {
			value, _ := result.Record().Get("e")
			v, err := edgeVersionFromProps(value.(neo4j.Node).Props)
			if err != nil {
				return nil, err
			}
			versions = append(versions, v)
		}
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*core.EdgeVersion), nil
}

// ReachableAt walks outgoing edges live at t with breadth-first frontier
// expansion inside one read transaction.
func (s *Neo4jStore) ReachableAt(ctx context.Context, startID string, t time.Time, maxDepth int, edgeTypes []string) ([]*core.Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		visited := map[string]*core.Node{}
		frontier := []string{startID}

		if nv, err := s.nodeVersionAtTx(ctx, tx, startID, t); err == nil && !nv.Tombstone() {
			visited[startID] = core.NodeView(nv, t).Node
		} else if err != nil && !core.IsNotFound(err) {
			return nil, err
		} else {
			visited[startID] = nil
		}

		for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
			var next []string
			for _, id := range frontier {
				pairs, err := neighborsAtNeo4j(ctx, tx, id, t, core.DirectionOut, edgeTypes)
				if err != nil {
					return nil, err
				}
				for _, p := range pairs {
					if _, seen := visited[p.Node.ID]; seen {
						continue
					}
					visited[p.Node.ID] = p.Node
					next = append(next, p.Node.ID)
				}
			}
			frontier = next
		}

		var nodes []*core.Node
		for _, n := range visited {
			if n != nil {
				nodes = append(nodes, n)
			}
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		return nodes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*core.Node), nil
}

func (s *Neo4jStore) nodeVersionAtTx(ctx context.Context, tx neo4j.ManagedTransaction, nodeID string, t time.Time) (*core.NodeVersion, error) {
	query := `
		MATCH (v:NodeVersion {node_id: $id})
		WHERE v.valid_from <= $at AND (v.valid_to IS NULL OR v.valid_to > $at)
		RETURN v
	`
	result, err := tx.Run(ctx, query, map[string]any{"id": nodeID, "at": nanos(t)})
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
	}
	value, _ := result.Record().Get("v")
	return nodeVersionFromProps(value.(neo4j.Node).Props)
}

func nodeVersionFromProps(props map[string]any) (*core.NodeVersion, error) {
	content, err := contentFromProp(props["content"])
	if err != nil {
		return nil, err
	}
	return &core.NodeVersion{
		VersionID: propString(props, "version_id"),
		NodeID:    propString(props, "node_id"),
		Label:     propString(props, "node_label"),
		Operation: core.Operation(propString(props, "operation")),
		Content:   content,
		Timestamp: fromNanos(propInt64(props, "timestamp")),
		ValidFrom: fromNanos(propInt64(props, "valid_from")),
		ValidTo:   validToFromProp(props["valid_to"]),
	}, nil
}

func edgeVersionFromProps(props map[string]any) (*core.EdgeVersion, error) {
	content, err := contentFromProp(props["content"])
	if err != nil {
		return nil, err
	}
	return &core.EdgeVersion{
		VersionID:   propString(props, "version_id"),
		EdgeID:      propString(props, "edge_id"),
		EdgeType:    propString(props, "edge_type"),
		SourceID:    propString(props, "source_node_id"),
		TargetID:    propString(props, "target_node_id"),
		Operation:   core.Operation(propString(props, "operation")),
		Content:     content,
		Notes:       propString(props, "notes"),
		CompositeID: propString(props, "composite_id"),
		Timestamp:   fromNanos(propInt64(props, "timestamp")),
		ValidFrom:   fromNanos(propInt64(props, "valid_from")),
		ValidTo:     validToFromProp(props["valid_to"]),
	}, nil
}

func contentFromProp(value any) (core.Properties, error) {
	str, ok := value.(string)
	if !ok || str == "" || str == "null" {
		return nil, nil
	}
	var content core.Properties
	if err := json.Unmarshal([]byte(str), &content); err != nil {
		return nil, fmt.Errorf("unmarshaling content: %w", err)
	}
	return content, nil
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propInt64(props map[string]any, key string) int64 {
	n, _ := props[key].(int64)
	return n
}

func validToFromProp(value any) time.Time {
	n, ok := value.(int64)
	if !ok {
		return time.Time{}
	}
	return fromNanos(n)
}
