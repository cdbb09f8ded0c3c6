package store

// SQLite schema DDL constants. Timestamps are int64 Unix nanoseconds;
// valid_to IS NULL marks the open version.

const schemaNodeVersions = `
CREATE TABLE IF NOT EXISTS node_versions (
    version_id TEXT PRIMARY KEY,
    node_id    TEXT NOT NULL,
    node_label TEXT NOT NULL,
    operation  TEXT NOT NULL CHECK (operation IN ('CREATE', 'UPDATE', 'DELETE')),
    content    TEXT,
    timestamp  INTEGER NOT NULL,
    valid_from INTEGER NOT NULL,
    valid_to   INTEGER
)`

const schemaEdgeVersions = `
CREATE TABLE IF NOT EXISTS edge_versions (
    version_id     TEXT PRIMARY KEY,
    edge_id        TEXT NOT NULL,
    edge_type      TEXT NOT NULL,
    source_node_id TEXT NOT NULL,
    target_node_id TEXT NOT NULL,
    operation      TEXT NOT NULL CHECK (operation IN ('CREATE', 'UPDATE', 'DELETE')),
    content        TEXT,
    notes          TEXT,
    composite_id   TEXT,
    timestamp      INTEGER NOT NULL,
    valid_from     INTEGER NOT NULL,
    valid_to       INTEGER
)`

// Interval lookups by (entity_id, valid_from).
const indexNodeVersionsEntity = `CREATE INDEX IF NOT EXISTS idx_node_versions_entity ON node_versions(node_id, valid_from)`
const indexEdgeVersionsEntity = `CREATE INDEX IF NOT EXISTS idx_edge_versions_entity ON edge_versions(edge_id, valid_from)`

// At most one open version per entity; backstop for the engine's
// compare-and-commit discipline.
const indexNodeVersionsOpen = `CREATE UNIQUE INDEX IF NOT EXISTS ux_node_versions_open ON node_versions(node_id) WHERE valid_to IS NULL`
const indexEdgeVersionsOpen = `CREATE UNIQUE INDEX IF NOT EXISTS ux_edge_versions_open ON edge_versions(edge_id) WHERE valid_to IS NULL`

// Adjacency and composite lookups.
const indexEdgeVersionsSource = `CREATE INDEX IF NOT EXISTS idx_edge_versions_source ON edge_versions(source_node_id)`
const indexEdgeVersionsTarget = `CREATE INDEX IF NOT EXISTS idx_edge_versions_target ON edge_versions(target_node_id)`
const indexEdgeVersionsComposite = `CREATE INDEX IF NOT EXISTS idx_edge_versions_composite ON edge_versions(composite_id) WHERE composite_id IS NOT NULL`

// SQLite pragmas for optimal performance
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaFK = `PRAGMA foreign_keys=ON`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodeVersions,
		schemaEdgeVersions,
		indexNodeVersionsEntity,
		indexEdgeVersionsEntity,
		indexNodeVersionsOpen,
		indexEdgeVersionsOpen,
		indexEdgeVersionsSource,
		indexEdgeVersionsTarget,
		indexEdgeVersionsComposite,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaFK,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
