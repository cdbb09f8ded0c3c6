package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

// forEachBackend runs the conformance tests against every embedded backend.
// The Neo4j backend needs a running server and is exercised separately.
func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLite(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("opening in-memory sqlite store: %v", err)
		}
		t.Cleanup(func() { s.Close(context.Background()) })
		fn(t, s)
	})
	t.Run("badger", func(t *testing.T) {
		s, err := NewBadger(InMemoryBadgerConfig())
		if err != nil {
			t.Fatalf("opening in-memory badger store: %v", err)
		}
		t.Cleanup(func() { s.Close(context.Background()) })
		fn(t, s)
	})
}

func nodeVersion(versionID, nodeID string, op core.Operation, t time.Time, props core.Properties) *core.NodeVersion {
	return &core.NodeVersion{
		VersionID: versionID,
		NodeID:    nodeID,
		Label:     "Claim",
		Operation: op,
		Content:   props,
		Timestamp: t,
		ValidFrom: t,
	}
}

func edgeVersion(versionID, edgeID, source, target string, op core.Operation, t time.Time) *core.EdgeVersion {
	return &core.EdgeVersion{
		VersionID: versionID,
		EdgeID:    edgeID,
		EdgeType:  "Connection",
		SourceID:  source,
		TargetID:  target,
		Operation: op,
		Timestamp: t,
		ValidFrom: t,
	}
}

// seedNode inserts a node's first version at the given instant.
func seedNode(t *testing.T, s Store, nodeID string, sec int) *core.NodeVersion {
	t.Helper()
	v := nodeVersion(nodeID+"-v1", nodeID, core.OpCreate, at(sec), core.Properties{"statement": nodeID})
	if err := s.InsertNodeVersion(context.Background(), v); err != nil {
		t.Fatalf("seeding node %s: %v", nodeID, err)
	}
	return v
}

// tombstoneNode closes the node's open version with a DELETE at the given
// instant.
func tombstoneNode(t *testing.T, s Store, nodeID string, sec int) *core.NodeVersion {
	t.Helper()
	ctx := context.Background()
	open, err := s.OpenNodeVersion(ctx, nodeID)
	if err != nil {
		t.Fatalf("reading open version of %s: %v", nodeID, err)
	}
	next := nodeVersion(fmt.Sprintf("%s-del-%d", nodeID, sec), nodeID, core.OpDelete, at(sec), nil)
	if err := s.CommitNodeVersion(ctx, open.VersionID, next); err != nil {
		t.Fatalf("tombstoning node %s: %v", nodeID, err)
	}
	return next
}

func TestNodeVersionLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		v1 := nodeVersion("v1", "n1", core.OpCreate, at(0), core.Properties{"statement": "first"})
		if err := s.InsertNodeVersion(ctx, v1); err != nil {
			t.Fatalf("insert: %v", err)
		}

		open, err := s.OpenNodeVersion(ctx, "n1")
		if err != nil {
			t.Fatalf("open version: %v", err)
		}
		if open.VersionID != "v1" || !open.Open() {
			t.Errorf("expected open v1, got %s (open=%v)", open.VersionID, open.Open())
		}

		v2 := nodeVersion("v2", "n1", core.OpUpdate, at(10), core.Properties{"statement": "second"})
		if err := s.CommitNodeVersion(ctx, "v1", v2); err != nil {
			t.Fatalf("commit: %v", err)
		}

		// First version is closed exactly at the successor's valid_from.
		prev, err := s.NodeVersionAt(ctx, "n1", at(5))
		if err != nil {
			t.Fatalf("as-of read: %v", err)
		}
		if prev.VersionID != "v1" {
			t.Errorf("expected v1 at t+5, got %s", prev.VersionID)
		}
		if !prev.ValidTo.Equal(at(10)) {
			t.Errorf("expected v1 closed at %v, got %v", at(10), prev.ValidTo)
		}

		// At the boundary instant the successor is effective.
		cur, err := s.NodeVersionAt(ctx, "n1", at(10))
		if err != nil {
			t.Fatalf("boundary read: %v", err)
		}
		if cur.VersionID != "v2" {
			t.Errorf("expected v2 at boundary, got %s", cur.VersionID)
		}

		// Before the first version the node does not exist.
		if _, err := s.NodeVersionAt(ctx, "n1", at(-1)); !core.IsNotFound(err) {
			t.Errorf("expected not-found before birth, got %v", err)
		}

		history, err := s.NodeHistory(ctx, "n1")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 versions, got %d", len(history))
		}
		if history[0].VersionID != "v1" || history[1].VersionID != "v2" {
			t.Errorf("history out of order: %s, %s", history[0].VersionID, history[1].VersionID)
		}
		if !history[0].ValidTo.Equal(history[1].ValidFrom) {
			t.Error("intervals do not chain: v1.valid_to != v2.valid_from")
		}
	})
}

func TestInsertNodeDuplicateID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedNode(t, s, "n1", 0)
		err := s.InsertNodeVersion(ctx, nodeVersion("other", "n1", core.OpCreate, at(1), nil))
		if !core.IsIdentityConflict(err) {
			t.Errorf("expected identity conflict, got %v", err)
		}

		// The losing insert must not leave a second version behind.
		history, err := s.NodeHistory(ctx, "n1")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 1 {
			t.Errorf("expected 1 version after rejected insert, got %d", len(history))
		}
	})
}

func TestCommitNodeVersionConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedNode(t, s, "n1", 0)
		v2 := nodeVersion("v2", "n1", core.OpUpdate, at(10), nil)
		if err := s.CommitNodeVersion(ctx, "n1-v1", v2); err != nil {
			t.Fatalf("first commit: %v", err)
		}

		// A writer still holding v1 loses.
		stale := nodeVersion("v3", "n1", core.OpUpdate, at(20), nil)
		err := s.CommitNodeVersion(ctx, "n1-v1", stale)
		if !core.IsConflict(err) {
			t.Errorf("expected conflict on stale expected version, got %v", err)
		}

		// An expected version that never existed also reads as a conflict.
		err = s.CommitNodeVersion(ctx, "ghost", nodeVersion("v4", "n1", core.OpUpdate, at(30), nil))
		if !core.IsConflict(err) {
			t.Errorf("expected conflict on unknown expected version, got %v", err)
		}

		// Failed commits must not append versions.
		history, err := s.NodeHistory(ctx, "n1")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 {
			t.Errorf("expected 2 versions, got %d", len(history))
		}
	})
}

func TestEdgeEndpointChecks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedNode(t, s, "a", 0)
		seedNode(t, s, "b", 0)

		// Creating toward a node that never existed fails.
		err := s.InsertEdgeVersion(ctx, edgeVersion("e0-v1", "e0", "a", "ghost", core.OpCreate, at(1)))
		var gone *core.EndpointGoneError
		if !errors.As(err, &gone) {
			t.Fatalf("expected endpoint-gone, got %v", err)
		}
		if gone.NodeID != "ghost" {
			t.Errorf("expected missing node ghost, got %s", gone.NodeID)
		}
		if gone.EdgeID != "" {
			t.Errorf("expected empty edge id on create, got %s", gone.EdgeID)
		}

		if err := s.InsertEdgeVersion(ctx, edgeVersion("e1-v1", "e1", "a", "b", core.OpCreate, at(1))); err != nil {
			t.Fatalf("insert edge: %v", err)
		}

		tombstoneNode(t, s, "b", 5)

		// Updating across a dead endpoint fails and names the edge.
		err = s.CommitEdgeVersion(ctx, "e1-v1", edgeVersion("e1-v2", "e1", "a", "b", core.OpUpdate, at(6)))
		if !errors.As(err, &gone) {
			t.Fatalf("expected endpoint-gone on update, got %v", err)
		}
		if gone.EdgeID != "e1" || gone.NodeID != "b" {
			t.Errorf("expected edge e1 node b, got edge %q node %q", gone.EdgeID, gone.NodeID)
		}

		// Tombstoning the edge skips the endpoint check.
		if err := s.CommitEdgeVersion(ctx, "e1-v1", edgeVersion("e1-v3", "e1", "a", "b", core.OpDelete, at(7))); err != nil {
			t.Fatalf("expected delete to bypass endpoint check, got %v", err)
		}
	})
}

func TestCommitEdgeGroupAtomic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedNode(t, s, "a", 0)
		seedNode(t, s, "b", 0)

		// Second member targets a missing node; the whole group must roll back.
		err := s.CommitEdgeGroup(ctx, []EdgeCommit{
			{Next: edgeVersion("g1-v1", "g1", "a", "b", core.OpCreate, at(1))},
			{Next: edgeVersion("g2-v1", "g2", "a", "ghost", core.OpCreate, at(1))},
		})
		if !core.IsEndpointGone(err) {
			t.Fatalf("expected endpoint-gone, got %v", err)
		}
		if _, err := s.OpenEdgeVersion(ctx, "g1"); !core.IsNotFound(err) {
			t.Errorf("first member leaked out of a failed group commit: %v", err)
		}

		// The same group against valid endpoints commits both members.
		err = s.CommitEdgeGroup(ctx, []EdgeCommit{
			{Next: edgeVersion("g1-v1", "g1", "a", "b", core.OpCreate, at(2))},
			{Next: edgeVersion("g2-v1", "g2", "b", "a", core.OpCreate, at(2))},
		})
		if err != nil {
			t.Fatalf("group commit: %v", err)
		}
		for _, id := range []string{"g1", "g2"} {
			if _, err := s.OpenEdgeVersion(ctx, id); err != nil {
				t.Errorf("member %s missing after group commit: %v", id, err)
			}
		}
	})
}

func TestNeighborsAt(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedNode(t, s, "a", 0)
		seedNode(t, s, "b", 0)
		seedNode(t, s, "c", 0)

		mustInsertEdge := func(v *core.EdgeVersion) {
			t.Helper()
			if err := s.InsertEdgeVersion(ctx, v); err != nil {
				t.Fatalf("inserting %s: %v", v.EdgeID, err)
			}
		}
		mustInsertEdge(edgeVersion("e1-v1", "e1", "a", "b", core.OpCreate, at(1)))
		cited := edgeVersion("e2-v1", "e2", "a", "c", core.OpCreate, at(1))
		cited.EdgeType = "CitedBy"
		mustInsertEdge(cited)
		mustInsertEdge(edgeVersion("e3-v1", "e3", "c", "a", core.OpCreate, at(1)))

		out, err := s.NeighborsAt(ctx, "a", at(2), core.DirectionOut, nil)
		if err != nil {
			t.Fatalf("outgoing neighbors: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("expected 2 outgoing neighbors, got %d", len(out))
		}
		if out[0].Edge.ID != "e1" || out[1].Edge.ID != "e2" {
			t.Errorf("neighbors not ordered by edge id: %s, %s", out[0].Edge.ID, out[1].Edge.ID)
		}
		if out[0].Node.ID != "b" || out[1].Node.ID != "c" {
			t.Errorf("wrong far nodes: %s, %s", out[0].Node.ID, out[1].Node.ID)
		}

		in, err := s.NeighborsAt(ctx, "a", at(2), core.DirectionIn, nil)
		if err != nil {
			t.Fatalf("incoming neighbors: %v", err)
		}
		if len(in) != 1 || in[0].Edge.ID != "e3" {
			t.Errorf("expected incoming e3, got %v", in)
		}

		both, err := s.NeighborsAt(ctx, "a", at(2), core.DirectionBoth, nil)
		if err != nil {
			t.Fatalf("both directions: %v", err)
		}
		if len(both) != 3 {
			t.Errorf("expected 3 neighbors in both directions, got %d", len(both))
		}

		filtered, err := s.NeighborsAt(ctx, "a", at(2), core.DirectionOut, []string{"CitedBy"})
		if err != nil {
			t.Fatalf("filtered neighbors: %v", err)
		}
		if len(filtered) != 1 || filtered[0].Edge.ID != "e2" {
			t.Errorf("expected only e2 for CitedBy filter, got %v", filtered)
		}

		// Before the edges existed there are no neighbors.
		early, err := s.NeighborsAt(ctx, "a", at(0), core.DirectionBoth, nil)
		if err != nil {
			t.Fatalf("early neighbors: %v", err)
		}
		if len(early) != 0 {
			t.Errorf("expected no neighbors before edge creation, got %d", len(early))
		}

		// A dead far node hides its edge; the edge record itself is untouched.
		tombstoneNode(t, s, "b", 10)
		afterDelete, err := s.NeighborsAt(ctx, "a", at(11), core.DirectionOut, nil)
		if err != nil {
			t.Fatalf("neighbors after delete: %v", err)
		}
		if len(afterDelete) != 1 || afterDelete[0].Node.ID != "c" {
			t.Errorf("expected only c after b's deletion, got %v", afterDelete)
		}
		// As of an earlier instant b is still visible.
		before, err := s.NeighborsAt(ctx, "a", at(5), core.DirectionOut, nil)
		if err != nil {
			t.Fatalf("as-of neighbors: %v", err)
		}
		if len(before) != 2 {
			t.Errorf("expected 2 neighbors before b's deletion, got %d", len(before))
		}
	})
}

func TestEdgesByComposite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		seedNode(t, s, "a", 0)
		seedNode(t, s, "b", 0)
		seedNode(t, s, "c", 0)

		m1 := edgeVersion("m1-v1", "m1", "a", "b", core.OpCreate, at(1))
		m1.CompositeID = "group-1"
		m2 := edgeVersion("m2-v1", "m2", "a", "c", core.OpCreate, at(1))
		m2.CompositeID = "group-1"
		if err := s.CommitEdgeGroup(ctx, []EdgeCommit{{Next: m1}, {Next: m2}}); err != nil {
			t.Fatalf("group commit: %v", err)
		}

		members, err := s.EdgesByComposite(ctx, "group-1")
		if err != nil {
			t.Fatalf("composite members: %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("expected 2 members, got %d", len(members))
		}
		if members[0].EdgeID != "m1" || members[1].EdgeID != "m2" {
			t.Errorf("members not ordered by edge id: %s, %s", members[0].EdgeID, members[1].EdgeID)
		}

		// Tombstoned members drop out.
		del := edgeVersion("m1-v2", "m1", "a", "b", core.OpDelete, at(5))
		del.CompositeID = "group-1"
		if err := s.CommitEdgeVersion(ctx, "m1-v1", del); err != nil {
			t.Fatalf("tombstoning member: %v", err)
		}
		members, err = s.EdgesByComposite(ctx, "group-1")
		if err != nil {
			t.Fatalf("composite members after delete: %v", err)
		}
		if len(members) != 1 || members[0].EdgeID != "m2" {
			t.Errorf("expected only m2 to remain, got %v", members)
		}

		empty, err := s.EdgesByComposite(ctx, "no-such-group")
		if err != nil {
			t.Fatalf("unknown composite: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("expected no members for unknown group, got %d", len(empty))
		}
	})
}

func TestReachableAt(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		// a -> b -> c -> d
		for _, id := range []string{"a", "b", "c", "d"} {
			seedNode(t, s, id, 0)
		}
		edges := []struct{ id, src, dst string }{
			{"e1", "a", "b"},
			{"e2", "b", "c"},
			{"e3", "c", "d"},
		}
		for _, e := range edges {
			if err := s.InsertEdgeVersion(ctx, edgeVersion(e.id+"-v1", e.id, e.src, e.dst, core.OpCreate, at(1))); err != nil {
				t.Fatalf("inserting %s: %v", e.id, err)
			}
		}

		ids := func(nodes []*core.Node) []string {
			out := make([]string, len(nodes))
			for i, n := range nodes {
				out[i] = n.ID
			}
			return out
		}

		all, err := s.ReachableAt(ctx, "a", at(2), 3, nil)
		if err != nil {
			t.Fatalf("full traversal: %v", err)
		}
		if got := ids(all); len(got) != 4 {
			t.Errorf("expected a,b,c,d reachable at depth 3, got %v", got)
		}

		shallow, err := s.ReachableAt(ctx, "a", at(2), 1, nil)
		if err != nil {
			t.Fatalf("depth-1 traversal: %v", err)
		}
		if got := ids(shallow); len(got) != 2 {
			t.Errorf("expected a,b at depth 1, got %v", got)
		}

		// A dead intermediate node blocks every path through it.
		tombstoneNode(t, s, "b", 10)
		blocked, err := s.ReachableAt(ctx, "a", at(11), 3, nil)
		if err != nil {
			t.Fatalf("traversal after delete: %v", err)
		}
		if got := ids(blocked); len(got) != 1 || got[0] != "a" {
			t.Errorf("expected only a after b's deletion, got %v", got)
		}

		// The historical graph is intact at earlier instants.
		historical, err := s.ReachableAt(ctx, "a", at(5), 3, nil)
		if err != nil {
			t.Fatalf("as-of traversal: %v", err)
		}
		if got := ids(historical); len(got) != 4 {
			t.Errorf("expected full chain before deletion, got %v", got)
		}
	})
}

func TestHistoryNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		if _, err := s.EdgeHistory(context.Background(), "nope"); !core.IsNotFound(err) {
			t.Errorf("expected not-found for unknown edge history, got %v", err)
		}
		if _, err := s.NodeHistory(context.Background(), "nope"); !core.IsNotFound(err) {
			t.Errorf("expected not-found for unknown node history, got %v", err)
		}
	})
}
