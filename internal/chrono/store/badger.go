package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// Key layout. Version records are keyed by entity id plus the valid_from
// instant zero-padded so prefix iteration yields history order; "open"
// pointers name the current open version; "adj" keys are the forward and
// reverse adjacency index; "comp" keys index composite membership.
//
//	nv/<node_id>/<valid_from>  -> NodeVersion JSON
//	ev/<edge_id>/<valid_from>  -> EdgeVersion JSON
//	open/n/<node_id>           -> version record key
//	open/e/<edge_id>           -> version record key
//	adj/out/<source_id>/<edge_id>, adj/in/<target_id>/<edge_id> -> nil
//	comp/<composite_id>/<edge_id>                               -> nil

func nodeVersionKey(nodeID string, validFrom int64) []byte {
	return []byte(fmt.Sprintf("nv/%s/%020d", nodeID, validFrom))
}

func edgeVersionKey(edgeID string, validFrom int64) []byte {
	return []byte(fmt.Sprintf("ev/%s/%020d", edgeID, validFrom))
}

func openNodeKey(nodeID string) []byte { return []byte(fmt.Sprintf("open/n/%s", nodeID)) }
func openEdgeKey(edgeID string) []byte { return []byte(fmt.Sprintf("open/e/%s", edgeID)) }

func adjOutKey(sourceID, edgeID string) []byte {
	return []byte(fmt.Sprintf("adj/out/%s/%s", sourceID, edgeID))
}

func adjInKey(targetID, edgeID string) []byte {
	return []byte(fmt.Sprintf("adj/in/%s/%s", targetID, edgeID))
}

func compositeKey(compositeID, edgeID string) []byte {
	return []byte(fmt.Sprintf("comp/%s/%s", compositeID, edgeID))
}

// BadgerConfig holds configuration for the Badger backend.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything off disk. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults for a persistent store.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store over an embedded BadgerDB. Commit-time
// conflicts from Badger's transaction isolation surface as core.ErrConflict.
type BadgerStore struct {
	db *badger.DB
}

// NewBadger opens a Badger-backed version log.
func NewBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, mapping Badger's commit-time
// conflict to the domain conflict error.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("committing version: %w", core.ErrConflict)
	}
	return err
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// InsertNodeVersion writes the first version of a node.
func (s *BadgerStore) InsertNodeVersion(ctx context.Context, v *core.NodeVersion) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(openNodeKey(v.NodeID))
		if err == nil {
			return &core.IdentityConflictError{Kind: core.KindNode, ID: v.NodeID}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("probing node id: %w", err)
		}
		return putNodeVersion(txn, v)
	})
}

// CommitNodeVersion atomically closes the expected open version and inserts
// the next one.
func (s *BadgerStore) CommitNodeVersion(ctx context.Context, expectedOpenVersionID string, next *core.NodeVersion) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		open, key, err := openNodeVersionTxn(txn, next.NodeID)
		if err != nil {
			if core.IsNotFound(err) {
				return fmt.Errorf("closing version %s: %w", expectedOpenVersionID, core.ErrConflict)
			}
			return err
		}
		if open.VersionID != expectedOpenVersionID {
			return fmt.Errorf("closing version %s: %w", expectedOpenVersionID, core.ErrConflict)
		}
		open.ValidTo = next.ValidFrom
		if err := setJSON(txn, key, open); err != nil {
			return err
		}
		return putNodeVersion(txn, next)
	})
}

// InsertEdgeVersion writes the first version of an edge.
func (s *BadgerStore) InsertEdgeVersion(ctx context.Context, v *core.EdgeVersion) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return applyEdgeCommitTxn(txn, EdgeCommit{Next: v})
	})
}

// CommitEdgeVersion atomically closes the expected open version and inserts
// the next one.
func (s *BadgerStore) CommitEdgeVersion(ctx context.Context, expectedOpenVersionID string, next *core.EdgeVersion) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return applyEdgeCommitTxn(txn, EdgeCommit{ExpectedOpenVersionID: expectedOpenVersionID, Next: next})
	})
}

// CommitEdgeGroup applies all members in one transaction.
func (s *BadgerStore) CommitEdgeGroup(ctx context.Context, commits []EdgeCommit) error {
	if len(commits) == 0 {
		return nil
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, c := range commits {
			if err := applyEdgeCommitTxn(txn, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyEdgeCommitTxn(txn *badger.Txn, c EdgeCommit) error {
	v := c.Next
	if c.ExpectedOpenVersionID == "" {
		_, err := txn.Get(openEdgeKey(v.EdgeID))
		if err == nil {
			return &core.IdentityConflictError{Kind: core.KindEdge, ID: v.EdgeID}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("probing edge id: %w", err)
		}
	} else {
		open, key, err := openEdgeVersionTxn(txn, v.EdgeID)
		if err != nil {
			if core.IsNotFound(err) {
				return fmt.Errorf("closing version %s: %w", c.ExpectedOpenVersionID, core.ErrConflict)
			}
			return err
		}
		if open.VersionID != c.ExpectedOpenVersionID {
			return fmt.Errorf("closing version %s: %w", c.ExpectedOpenVersionID, core.ErrConflict)
		}
		open.ValidTo = v.ValidFrom
		if err := setJSON(txn, key, open); err != nil {
			return err
		}
	}

	if v.Operation != core.OpDelete {
		for _, nodeID := range []string{v.SourceID, v.TargetID} {
			live, err := nodeLiveTxn(txn, nodeID)
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

	return putEdgeVersion(txn, v, c.ExpectedOpenVersionID == "")
}

func putNodeVersion(txn *badger.Txn, v *core.NodeVersion) error {
	key := nodeVersionKey(v.NodeID, v.ValidFrom.UnixNano())
	if err := setJSON(txn, key, v); err != nil {
		return err
	}
	if err := txn.Set(openNodeKey(v.NodeID), key); err != nil {
		return fmt.Errorf("writing open pointer: %w", err)
	}
	return nil
}

func putEdgeVersion(txn *badger.Txn, v *core.EdgeVersion, first bool) error {
	key := edgeVersionKey(v.EdgeID, v.ValidFrom.UnixNano())
	if err := setJSON(txn, key, v); err != nil {
		return err
	}
	if err := txn.Set(openEdgeKey(v.EdgeID), key); err != nil {
		return fmt.Errorf("writing open pointer: %w", err)
	}
	if first {
		if err := txn.Set(adjOutKey(v.SourceID, v.EdgeID), nil); err != nil {
			return fmt.Errorf("writing adjacency index: %w", err)
		}
		if err := txn.Set(adjInKey(v.TargetID, v.EdgeID), nil); err != nil {
			return fmt.Errorf("writing adjacency index: %w", err)
		}
		if v.CompositeID != "" {
			if err := txn.Set(compositeKey(v.CompositeID, v.EdgeID), nil); err != nil {
				return fmt.Errorf("writing composite index: %w", err)
			}
		}
	}
	return nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling version record: %w", err)
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("writing version record: %w", err)
	}
	return nil
}

func nodeLiveTxn(txn *badger.Txn, nodeID string) (bool, error) {
	v, _, err := openNodeVersionTxn(txn, nodeID)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !v.Tombstone(), nil
}

func openNodeVersionTxn(txn *badger.Txn, nodeID string) (*core.NodeVersion, []byte, error) {
	item, err := txn.Get(openNodeKey(nodeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading open pointer: %w", err)
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("reading open pointer: %w", err)
	}
	var v core.NodeVersion
	if err := getJSON(txn, key, &v); err != nil {
		return nil, nil, err
	}
	return &v, key, nil
}

func openEdgeVersionTxn(txn *badger.Txn, edgeID string) (*core.EdgeVersion, []byte, error) {
	item, err := txn.Get(openEdgeKey(edgeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading open pointer: %w", err)
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("reading open pointer: %w", err)
	}
	var v core.EdgeVersion
	if err := getJSON(txn, key, &v); err != nil {
		return nil, nil, err
	}
	return &v, key, nil
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return fmt.Errorf("reading version record %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("unmarshaling version record %s: %w", key, err)
		}
		return nil
	})
}

// OpenNodeVersion returns the node's open version, tombstone included.
func (s *BadgerStore) OpenNodeVersion(ctx context.Context, nodeID string) (*core.NodeVersion, error) {
	var out *core.NodeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		v, _, err := openNodeVersionTxn(txn, nodeID)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpenEdgeVersion returns the edge's open version, tombstone included.
func (s *BadgerStore) OpenEdgeVersion(ctx context.Context, edgeID string) (*core.EdgeVersion, error) {
	var out *core.EdgeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		v, _, err := openEdgeVersionTxn(txn, edgeID)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NodeVersionAt returns the version record effective at t.
func (s *BadgerStore) NodeVersionAt(ctx context.Context, nodeID string, t time.Time) (*core.NodeVersion, error) {
	var out *core.NodeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		v, err := nodeVersionAtTxn(txn, nodeID, t)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EdgeVersionAt returns the version record effective at t.
func (s *BadgerStore) EdgeVersionAt(ctx context.Context, edgeID string, t time.Time) (*core.EdgeVersion, error) {
	var out *core.EdgeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		v, err := edgeVersionAtTxn(txn, edgeID, t)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nodeVersionAtTxn scans the node's history prefix in order and keeps the
// last record whose interval covers t.
func nodeVersionAtTxn(txn *badger.Txn, nodeID string, t time.Time) (*core.NodeVersion, error) {
	prefix := []byte(fmt.Sprintf("nv/%s/", nodeID))
	var match *core.NodeVersion

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var v core.NodeVersion
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return nil, fmt.Errorf("unmarshaling version record: %w", err)
		}
		if v.ValidFrom.After(t) {
			break
		}
		if v.ValidTo.IsZero() || v.ValidTo.After(t) {
			match = &v
		}
	}
	if match == nil {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
	}
	return match, nil
}

func edgeVersionAtTxn(txn *badger.Txn, edgeID string, t time.Time) (*core.EdgeVersion, error) {
	prefix := []byte(fmt.Sprintf("ev/%s/", edgeID))
	var match *core.EdgeVersion

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var v core.EdgeVersion
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return nil, fmt.Errorf("unmarshaling version record: %w", err)
		}
		if v.ValidFrom.After(t) {
			break
		}
		if v.ValidTo.IsZero() || v.ValidTo.After(t) {
			match = &v
		}
	}
	if match == nil {
		return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
	}
	return match, nil
}

// NodeHistory returns all versions of a node, earliest first.
func (s *BadgerStore) NodeHistory(ctx context.Context, nodeID string) ([]core.NodeVersion, error) {
	var versions []core.NodeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("nv/%s/", nodeID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v core.NodeVersion
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("unmarshaling version record: %w", err)
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &core.NotFoundError{Kind: core.KindNode, ID: nodeID}
	}
	return versions, nil
}

// EdgeHistory returns all versions of an edge, earliest first.
func (s *BadgerStore) EdgeHistory(ctx context.Context, edgeID string) ([]core.EdgeVersion, error) {
	var versions []core.EdgeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("ev/%s/", edgeID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v core.EdgeVersion
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("unmarshaling version record: %w", err)
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &core.NotFoundError{Kind: core.KindEdge, ID: edgeID}
	}
	return versions, nil
}

// NeighborsAt returns (edge, far node) pairs live at t, ordered by edge id.
func (s *BadgerStore) NeighborsAt(ctx context.Context, nodeID string, t time.Time, direction core.Direction, edgeTypes []string) ([]core.Neighbor, error) {
	var neighbors []core.Neighbor
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		neighbors, err = neighborsAtTxn(txn, nodeID, t, direction, edgeTypes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return neighbors, nil
}

func neighborsAtTxn(txn *badger.Txn, nodeID string, t time.Time, direction core.Direction, edgeTypes []string) ([]core.Neighbor, error) {
	typeOK := func(edgeType string) bool {
		if len(edgeTypes) == 0 {
			return true
		}
		for _, et := range edgeTypes {
			if et == edgeType {
				return true
			}
		}
		return false
	}

	var neighbors []core.Neighbor
	collect := func(prefix []byte, outgoing bool) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			edgeID := string(it.Item().Key()[len(prefix):])
			ev, err := edgeVersionAtTxn(txn, edgeID, t)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return err
			}
			if ev.Tombstone() || !typeOK(ev.EdgeType) {
				continue
			}
			farID := ev.TargetID
			if !outgoing {
				farID = ev.SourceID
			}
			nv, err := nodeVersionAtTxn(txn, farID, t)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return err
			}
			if nv.Tombstone() {
				continue
			}
			neighbors = append(neighbors, core.Neighbor{
				Edge: core.EdgeView(ev, t).Edge,
				Node: core.NodeView(nv, t).Node,
			})
		}
		return nil
	}

	if direction == core.DirectionOut || direction == core.DirectionBoth {
		if err := collect([]byte(fmt.Sprintf("adj/out/%s/", nodeID)), true); err != nil {
			return nil, err
		}
	}
	if direction == core.DirectionIn || direction == core.DirectionBoth {
		if err := collect([]byte(fmt.Sprintf("adj/in/%s/", nodeID)), false); err != nil {
			return nil, err
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Edge.ID < neighbors[j].Edge.ID })
	return neighbors, nil
}

// EdgesByComposite returns the live open member edges of a composite group.
func (s *BadgerStore) EdgesByComposite(ctx context.Context, compositeID string) ([]*core.EdgeVersion, error) {
	var versions []*core.EdgeVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("comp/%s/", compositeID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			edgeID := string(it.Item().Key()[len(prefix):])
			v, _, err := openEdgeVersionTxn(txn, edgeID)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return err
			}
			if v.Tombstone() {
				continue
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// ReachableAt walks outgoing edges live at t with breadth-first frontier
// expansion.
func (s *BadgerStore) ReachableAt(ctx context.Context, startID string, t time.Time, maxDepth int, edgeTypes []string) ([]*core.Node, error) {
	var nodes []*core.Node
	err := s.view(ctx, func(txn *badger.Txn) error {
		visited := map[string]bool{startID: true}
		frontier := []string{startID}

		for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
			var next []string
			for _, id := range frontier {
				pairs, err := neighborsAtTxn(txn, id, t, core.DirectionOut, edgeTypes)
				if err != nil {
					return err
				}
				for _, p := range pairs {
					if visited[p.Node.ID] {
						continue
					}
					visited[p.Node.ID] = true
					next = append(next, p.Node.ID)
				}
			}
			frontier = next
		}

		for id := range visited {
			nv, err := nodeVersionAtTxn(txn, id, t)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return err
			}
			if nv.Tombstone() {
				continue
			}
			nodes = append(nodes, core.NodeView(nv, t).Node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}
