package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// SQLiteStore implements Store over modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the version log at dbPath. Pass
// ":memory:" for an in-memory store. The connection pool is capped at one
// connection: SQLite allows a single writer and the cap also keeps
// ":memory:" databases shared across calls.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite connection.
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// nanos converts a time to the stored int64 Unix-nanosecond form.
func nanos(t time.Time) int64 { return t.UnixNano() }

// fromNanos converts a stored timestamp back to a UTC time.
func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func marshalProps(p core.Properties) (sql.NullString, error) {
	if len(p) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling properties: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalProps(s sql.NullString) (core.Properties, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var p core.Properties
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	return p, nil
}

// InsertNodeVersion writes the first version of a node.
func (s *SQLiteStore) InsertNodeVersion(ctx context.Context, v *core.NodeVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM node_versions WHERE node_id = ?`, v.NodeID,
	).Scan(&count); err != nil {
		return fmt.Errorf("probing node id: %w", err)
	}
	if count > 0 {
		return &core.IdentityConflictError{Kind: core.KindNode, ID: v.NodeID}
	}

	if err := insertNodeVersionTx(ctx, tx, v); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing node version: %w", err)
	}
	return nil
}

// CommitNodeVersion atomically closes the expected open version and inserts
// the next one.
func (s *SQLiteStore) CommitNodeVersion(ctx context.Context, expectedOpenVersionID string, next *core.NodeVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := closeVersionTx(ctx, tx, "node_versions", expectedOpenVersionID, next.ValidFrom); err != nil {
		return err
	}
	if err := insertNodeVersionTx(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing node version: %w", err)
	}
	return nil
}

// InsertEdgeVersion writes the first version of an edge, re-checking both
// endpoints inside the transaction.
func (s *SQLiteStore) InsertEdgeVersion(ctx context.Context, v *core.EdgeVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := applyEdgeCommitTx(ctx, tx, EdgeCommit{Next: v}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge version: %w", err)
	}
	return nil
}

// CommitEdgeVersion atomically closes the expected open version and inserts
// the next one, re-checking endpoints unless the next version is a DELETE.
func (s *SQLiteStore) CommitEdgeVersion(ctx context.Context, expectedOpenVersionID string, next *core.EdgeVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := applyEdgeCommitTx(ctx, tx, EdgeCommit{ExpectedOpenVersionID: expectedOpenVersionID, Next: next}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge version: %w", err)
	}
	return nil
}

// CommitEdgeGroup applies all members as one transaction; any failure rolls
// the whole group back.
func (s *SQLiteStore) CommitEdgeGroup(ctx context.Context, commits []EdgeCommit) error {
	if len(commits) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range commits {
		if err := applyEdgeCommitTx(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge group: %w", err)
	}
	return nil
}

// closeVersionTx conditionally closes an open version row. Zero rows
// affected means another writer got there first.
func closeVersionTx(ctx context.Context, tx *sql.Tx, table, versionID string, validTo time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET valid_to = ? WHERE version_id = ? AND valid_to IS NULL`,
		nanos(validTo), versionID,
	)
	if err != nil {
		return fmt.Errorf("closing version %s: %w", versionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing version %s: %w", versionID, err)
	}
	if affected == 0 {
		return fmt.Errorf("closing version %s: %w", versionID, core.ErrConflict)
	}
	return nil
}

func insertNodeVersionTx(ctx context.Context, tx *sql.Tx, v *core.NodeVersion) error {
	content, err := marshalProps(v.Content)
	if err != nil {
		return err
	}
	validTo := sql.NullInt64{}
	if !v.ValidTo.IsZero() {
		validTo = sql.NullInt64{Int64: nanos(v.ValidTo), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO node_versions (version_id, node_id, node_label, operation, content, timestamp, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, v.NodeID, v.Label, string(v.Operation), content,
		nanos(v.Timestamp), nanos(v.ValidFrom), validTo,
	)
	if err != nil {
		return fmt.Errorf("inserting node version: %w", err)
	}
	return nil
}

func insertEdgeVersionTx(ctx context.Context, tx *sql.Tx, v *core.EdgeVersion) error {
	content, err := marshalProps(v.Content)
	if err != nil {
		return err
	}
	notes := sql.NullString{String: v.Notes, Valid: v.Notes != ""}
	composite := sql.NullString{String: v.CompositeID, Valid: v.CompositeID != ""}
	validTo := sql.NullInt64{}
	if !v.ValidTo.IsZero() {
		validTo = sql.NullInt64{Int64: nanos(v.ValidTo), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edge_versions (version_id, edge_id, edge_type, source_node_id, target_node_id, operation, content, notes, composite_id, timestamp, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, v.EdgeID, v.EdgeType, v.SourceID, v.TargetID, string(v.Operation),
		content, notes, composite, nanos(v.Timestamp), nanos(v.ValidFrom), validTo,
	)
	if err != nil {
		return fmt.Errorf("inserting edge version: %w", err)
	}
	return nil
}

// applyEdgeCommitTx performs one member of an edge write inside tx:
// identity probe for first versions, endpoint re-check for non-DELETE
// operations, conditional close for successors, then the insert.
func applyEdgeCommitTx(ctx context.Context, tx *sql.Tx, c EdgeCommit) error {
	v := c.Next
	if c.ExpectedOpenVersionID == "" {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM edge_versions WHERE edge_id = ?`, v.EdgeID,
		).Scan(&count); err != nil {
			return fmt.Errorf("probing edge id: %w", err)
		}
		if count > 0 {
			return &core.IdentityConflictError{Kind: core.KindEdge, ID: v.EdgeID}
		}
	} else {
		if err := closeVersionTx(ctx, tx, "edge_versions", c.ExpectedOpenVersionID, v.ValidFrom); err != nil {
			return err
		}
	}

	if v.Operation != core.OpDelete {
		for _, nodeID := range []string{v.SourceID, v.TargetID} {
			live, err := nodeLiveTx(ctx, tx, nodeID)
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

	return insertEdgeVersionTx(ctx, tx, v)
}

// nodeLiveTx reports whether the node currently exists: an open version
// whose operation is not DELETE.
func nodeLiveTx(ctx context.Context, tx *sql.Tx, nodeID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM node_versions WHERE node_id = ? AND valid_to IS NULL AND operation != 'DELETE'`,
		nodeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking endpoint %s: %w", nodeID, err)
	}
	return count > 0, nil
}

const nodeVersionColumns = `version_id, node_id, node_label, operation, content, timestamp, valid_from, valid_to`
const edgeVersionColumns = `version_id, edge_id, edge_type, source_node_id, target_node_id, operation, content, notes, composite_id, timestamp, valid_from, valid_to`

// OpenNodeVersion returns the node's open version, tombstone included.
func (s *SQLiteStore) OpenNodeVersion(ctx context.Context, nodeID string) (*core.NodeVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeVersionColumns+` FROM node_versions WHERE node_id = ? AND valid_to IS NULL`,
		nodeID,
	)
	return scanNodeVersion(row, nodeID)
}

// OpenEdgeVersion returns the edge's open version, tombstone included.
func (s *SQLiteStore) OpenEdgeVersion(ctx context.Context, edgeID string) (*core.EdgeVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+edgeVersionColumns+` FROM edge_versions WHERE edge_id = ? AND valid_to IS NULL`,
		edgeID,
	)
	return scanEdgeVersion(row, edgeID)
}

// NodeVersionAt returns the version record effective at t.
func (s *SQLiteStore) NodeVersionAt(ctx context.Context, nodeID string, t time.Time) (*core.NodeVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeVersionColumns+` FROM node_versions
		 WHERE node_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`,
		nodeID, nanos(t), nanos(t),
	)
	return scanNodeVersion(row, nodeID)
}

// EdgeVersionAt returns the version record effective at t.
func (s *SQLiteStore) EdgeVersionAt(ctx context.Context, edgeID string, t time.Time) (*core.EdgeVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+edgeVersionColumns+` FROM edge_versions
		 WHERE edge_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`,
		edgeID, nanos(t), nanos(t),
	)
	return scanEdgeVersion(row, edgeID)
}

// NodeHistory returns all versions of a node, earliest first.
func (s *SQLiteStore) NodeHistory(ctx context.Context, nodeID string) ([]core.NodeVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeVersionColumns+` FROM node_versions WHERE node_id = ? ORDER BY valid_from ASC`,
		nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying node history: %w", err)
	}
	defer rows.Close()

	var versions []core.NodeVersion
	for rows.Next() {
		v, err := scanNodeVersionRow(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading node history: %w", err)
	}
	if len(versions) == 0 {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
	}
	return versions, nil
}

// EdgeHistory returns all versions of an edge, earliest first.
func (s *SQLiteStore) EdgeHistory(ctx context.Context, edgeID string) ([]core.EdgeVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeVersionColumns+` FROM edge_versions WHERE edge_id = ? ORDER BY valid_from ASC`,
		edgeID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying edge history: %w", err)
	}
	defer rows.Close()

	var versions []core.EdgeVersion
	for rows.Next() {
		v, err := scanEdgeVersionRow(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading edge history: %w", err)
	}
	if len(versions) == 0 {
		return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
	}
	return versions, nil
}

// NeighborsAt returns (edge, far node) pairs live at t, ordered by edge id.
func (s *SQLiteStore) NeighborsAt(ctx context.Context, nodeID string, t time.Time, direction core.Direction, edgeTypes []string) ([]core.Neighbor, error) {
	var neighbors []core.Neighbor
	if direction == core.DirectionOut || direction == core.DirectionBoth {
		out, err := s.neighborsDirected(ctx, nodeID, t, true, edgeTypes)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, out...)
	}
	if direction == core.DirectionIn || direction == core.DirectionBoth {
		in, err := s.neighborsDirected(ctx, nodeID, t, false, edgeTypes)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, in...)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Edge.ID < neighbors[j].Edge.ID })
	return neighbors, nil
}

func (s *SQLiteStore) neighborsDirected(ctx context.Context, nodeID string, t time.Time, outgoing bool, edgeTypes []string) ([]core.Neighbor, error) {
	nearCol, farCol := "source_node_id", "target_node_id"
	if !outgoing {
		nearCol, farCol = farCol, nearCol
	}

	query := `
		SELECT e.version_id, e.edge_id, e.edge_type, e.source_node_id, e.target_node_id,
		       e.operation, e.content, e.notes, e.composite_id, e.timestamp, e.valid_from, e.valid_to,
		       n.version_id, n.node_id, n.node_label, n.content, n.valid_from
		FROM edge_versions e
		JOIN node_versions n ON n.node_id = e.` + farCol + `
		WHERE e.` + nearCol + ` = ?
		  AND e.valid_from <= ? AND (e.valid_to IS NULL OR e.valid_to > ?) AND e.operation != 'DELETE'
		  AND n.valid_from <= ? AND (n.valid_to IS NULL OR n.valid_to > ?) AND n.operation != 'DELETE'`
	args := []any{nodeID, nanos(t), nanos(t), nanos(t), nanos(t)}

	if len(edgeTypes) > 0 {
		placeholders := make([]string, len(edgeTypes))
		for i, et := range edgeTypes {
			placeholders[i] = "?"
			args = append(args, et)
		}
		query += " AND e.edge_type IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY e.edge_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying neighbors: %w", err)
	}
	defer rows.Close()

	var neighbors []core.Neighbor
	for rows.Next() {
		var (
			edgeVersionID string
			edgeID        string
			edgeType      string
			sourceID      string
			targetID      string
			operation     string
			edgeContent   sql.NullString
			notes         sql.NullString
			composite     sql.NullString
			timestamp     int64
			edgeFrom      int64
			edgeTo        sql.NullInt64
			nodeVersionID string
			nodeEntityID  string
			nodeLabel     string
			nodeContent   sql.NullString
			nodeFrom      int64
		)
		if err := rows.Scan(
			&edgeVersionID, &edgeID, &edgeType, &sourceID, &targetID,
			&operation, &edgeContent, &notes, &composite, &timestamp, &edgeFrom, &edgeTo,
			&nodeVersionID, &nodeEntityID, &nodeLabel, &nodeContent, &nodeFrom,
		); err != nil {
			return nil, fmt.Errorf("scanning neighbor: %w", err)
		}

		edgeProps, err := unmarshalProps(edgeContent)
		if err != nil {
			return nil, err
		}
		nodeProps, err := unmarshalProps(nodeContent)
		if err != nil {
			return nil, err
		}

		neighbors = append(neighbors, core.Neighbor{
			Edge: &core.Edge{
				ID:          edgeID,
				Type:        edgeType,
				SourceID:    sourceID,
				TargetID:    targetID,
				Properties:  edgeProps,
				Notes:       notes.String,
				CompositeID: composite.String,
				VersionID:   edgeVersionID,
				ValidFrom:   fromNanos(edgeFrom),
			},
			Node: &core.Node{
				ID:         nodeEntityID,
				Label:      nodeLabel,
				Properties: nodeProps,
				VersionID:  nodeVersionID,
				ValidFrom:  fromNanos(nodeFrom),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading neighbors: %w", err)
	}
	return neighbors, nil
}

// EdgesByComposite returns the live open member edges of a composite group.
func (s *SQLiteStore) EdgesByComposite(ctx context.Context, compositeID string) ([]*core.EdgeVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeVersionColumns+` FROM edge_versions
		 WHERE composite_id = ? AND valid_to IS NULL AND operation != 'DELETE'
		 ORDER BY edge_id`,
		compositeID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying composite edges: %w", err)
	}
	defer rows.Close()

	var versions []*core.EdgeVersion
	for rows.Next() {
		v, err := scanEdgeVersionRow(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading composite edges: %w", err)
	}
	return versions, nil
}

// ReachableAt walks outgoing edges live at t with a recursive CTE.
func (s *SQLiteStore) ReachableAt(ctx context.Context, startID string, t time.Time, maxDepth int, edgeTypes []string) ([]*core.Node, error) {
	relTypeFilter := ""
	args := []any{startID, maxDepth, nanos(t), nanos(t), nanos(t), nanos(t)}
	if len(edgeTypes) > 0 {
		placeholders := make([]string, len(edgeTypes))
		for i, et := range edgeTypes {
			placeholders[i] = "?"
			args = append(args, et)
		}
		relTypeFilter = " AND e.edge_type IN (" + strings.Join(placeholders, ",") + ")"
	}

	// The recursive member requires the far node to be live at t, so a
	// deleted node blocks every path through it.
	query := fmt.Sprintf(`
		WITH RECURSIVE traverse(id, depth) AS (
			SELECT ?, 0
			UNION
			SELECT e.target_node_id, t.depth + 1
			FROM traverse t
			JOIN edge_versions e ON e.source_node_id = t.id
			JOIN node_versions far ON far.node_id = e.target_node_id
			WHERE t.depth < ?
			  AND e.valid_from <= ? AND (e.valid_to IS NULL OR e.valid_to > ?)
			  AND e.operation != 'DELETE'
			  AND far.valid_from <= ? AND (far.valid_to IS NULL OR far.valid_to > ?)
			  AND far.operation != 'DELETE'%s
		)
		SELECT DISTINCT n.version_id, n.node_id, n.node_label, n.content, n.valid_from
		FROM traverse t
		JOIN node_versions n ON n.node_id = t.id
		WHERE n.valid_from <= ? AND (n.valid_to IS NULL OR n.valid_to > ?)
		  AND n.operation != 'DELETE'
		ORDER BY n.node_id`, relTypeFilter)
	args = append(args, nanos(t), nanos(t))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("traversing graph: %w", err)
	}
	defer rows.Close()

	var nodes []*core.Node
	for rows.Next() {
		var (
			versionID string
			nodeID    string
			label     string
			content   sql.NullString
			from      int64
		)
		if err := rows.Scan(&versionID, &nodeID, &label, &content, &from); err != nil {
			return nil, fmt.Errorf("scanning traversal node: %w", err)
		}
		props, err := unmarshalProps(content)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &core.Node{
			ID:         nodeID,
			Label:      label,
			Properties: props,
			VersionID:  versionID,
			ValidFrom:  fromNanos(from),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading traversal: %w", err)
	}
	return nodes, nil
}

func scanNodeVersion(row *sql.Row, nodeID string) (*core.NodeVersion, error) {
	var (
		v         core.NodeVersion
		operation string
		content   sql.NullString
		timestamp int64
		validFrom int64
		validTo   sql.NullInt64
	)
	err := row.Scan(&v.VersionID, &v.NodeID, &v.Label, &operation, &content, &timestamp, &validFrom, &validTo)
	if err == sql.ErrNoRows {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning node version: %w", err)
	}
	return finishNodeVersion(&v, operation, content, timestamp, validFrom, validTo)
}

func scanNodeVersionRow(rows *sql.Rows) (*core.NodeVersion, error) {
	var (
		v         core.NodeVersion
		operation string
		content   sql.NullString
		timestamp int64
		validFrom int64
		validTo   sql.NullInt64
	)
	if err := rows.Scan(&v.VersionID, &v.NodeID, &v.Label, &operation, &content, &timestamp, &validFrom, &validTo); err != nil {
		return nil, fmt.Errorf("scanning node version: %w", err)
	}
	return finishNodeVersion(&v, operation, content, timestamp, validFrom, validTo)
}

func finishNodeVersion(v *core.NodeVersion, operation string, content sql.NullString, timestamp, validFrom int64, validTo sql.NullInt64) (*core.NodeVersion, error) {
	props, err := unmarshalProps(content)
	if err != nil {
		return nil, err
	}
	v.Operation = core.Operation(operation)
	v.Content = props
	v.Timestamp = fromNanos(timestamp)
	v.ValidFrom = fromNanos(validFrom)
	if validTo.Valid {
		v.ValidTo = fromNanos(validTo.Int64)
	}
	return v, nil
}

func scanEdgeVersion(row *sql.Row, edgeID string) (*core.EdgeVersion, error) {
	var (
		v         core.EdgeVersion
		operation string
		content   sql.NullString
		notes     sql.NullString
		composite sql.NullString
		timestamp int64
		validFrom int64
		validTo   sql.NullInt64
	)
	err := row.Scan(&v.VersionID, &v.EdgeID, &v.EdgeType, &v.SourceID, &v.TargetID,
		&operation, &content, &notes, &composite, &timestamp, &validFrom, &validTo)
	if err == sql.ErrNoRows {
		return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning edge version: %w", err)
	}
	return finishEdgeVersion(&v, operation, content, notes, composite, timestamp, validFrom, validTo)
}

func scanEdgeVersionRow(rows *sql.Rows) (*core.EdgeVersion, error) {
	var (
		v         core.EdgeVersion
		operation string
		content   sql.NullString
		notes     sql.NullString
		composite sql.NullString
		timestamp int64
		validFrom int64
		validTo   sql.NullInt64
	)
	if err := rows.Scan(&v.VersionID, &v.EdgeID, &v.EdgeType, &v.SourceID, &v.TargetID,
		&operation, &content, &notes, &composite, &timestamp, &validFrom, &validTo); err != nil {
		return nil, fmt.Errorf("scanning edge version: %w", err)
	}
	return finishEdgeVersion(&v, operation, content, notes, composite, timestamp, validFrom, validTo)
}

func finishEdgeVersion(v *core.EdgeVersion, operation string, content, notes, composite sql.NullString, timestamp, validFrom int64, validTo sql.NullInt64) (*core.EdgeVersion, error) {
	props, err := unmarshalProps(content)
	if err != nil {
		return nil, err
	}
	v.Operation = core.Operation(operation)
	v.Content = props
	v.Notes = notes.String
	v.CompositeID = composite.String
	v.Timestamp = fromNanos(timestamp)
	v.ValidFrom = fromNanos(validFrom)
	if validTo.Valid {
		v.ValidTo = fromNanos(validTo.Int64)
	}
	return v, nil
}
