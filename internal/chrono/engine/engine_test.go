package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
	"github.com/chronograph-db/chronograph/internal/chrono/schema"
	"github.com/chronograph-db/chronograph/internal/chrono/store"
)

// fakeClock is a manually driven time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var testBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close(context.Background()) })

	clock := newFakeClock(testBase)
	eng := New(st, schema.Default(), DefaultConfig(), quietLogger())
	eng.SetClock(clock)
	return eng, clock, st
}

func mustCreateClaim(t *testing.T, eng *Engine, statement string) *core.Node {
	t.Helper()
	node, err := eng.CreateNode(context.Background(), NodeInput{
		Label:      "Claim",
		Properties: core.Properties{"statement": statement},
	})
	if err != nil {
		t.Fatalf("creating claim: %v", err)
	}
	return node
}

func TestCreateNode(t *testing.T) {
	eng, _, st := newTestEngine(t)
	ctx := context.Background()

	node := mustCreateClaim(t, eng, "water is wet")
	if node.ID == "" || node.VersionID == "" {
		t.Fatal("expected generated identifiers")
	}
	if node.Label != "Claim" {
		t.Errorf("expected label Claim, got %s", node.Label)
	}
	if !node.ValidFrom.Equal(testBase) {
		t.Errorf("expected valid_from %v, got %v", testBase, node.ValidFrom)
	}

	open, err := st.OpenNodeVersion(ctx, node.ID)
	if err != nil {
		t.Fatalf("open version: %v", err)
	}
	if open.Operation != core.OpCreate {
		t.Errorf("expected CREATE, got %s", open.Operation)
	}
	if open.Content["statement"] != "water is wet" {
		t.Errorf("content not committed: %v", open.Content)
	}
}

func TestCreateNodeSchemaRejection(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.CreateNode(ctx, NodeInput{Label: "Ghost"})
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for unknown label, got %v", err)
	}

	_, err = eng.CreateNode(ctx, NodeInput{Label: "Claim", Properties: core.Properties{"confidence": 0.5}})
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for missing required property, got %v", err)
	}
}

func TestUpdateNodeReplacesProperties(t *testing.T) {
	eng, clock, st := newTestEngine(t)
	ctx := context.Background()

	node := mustCreateClaim(t, eng, "first")
	clock.Advance(time.Second)

	updated, err := eng.UpdateNode(ctx, node.ID, core.Properties{
		"statement":  "second",
		"confidence": 0.8,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Properties["statement"] != "second" {
		t.Errorf("replacement content missing: %v", updated.Properties)
	}

	// The update replaces the property set wholesale; drop confidence again.
	clock.Advance(time.Second)
	final, err := eng.UpdateNode(ctx, node.ID, core.Properties{"statement": "third"})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if _, ok := final.Properties["confidence"]; ok {
		t.Error("stale property survived a full replacement")
	}

	// The superseded version is still addressable at its own instant.
	v, err := st.NodeVersionAt(ctx, node.ID, testBase)
	if err != nil {
		t.Fatalf("as-of read: %v", err)
	}
	if v.Content["statement"] != "first" {
		t.Errorf("original content lost: %v", v.Content)
	}

	history, err := st.NodeHistory(ctx, node.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 versions, got %d", len(history))
	}
}

func TestUpdateNodeMissing(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.UpdateNode(context.Background(), "no-such-node", core.Properties{"statement": "x"})
	if !core.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestDeleteNode(t *testing.T) {
	eng, clock, st := newTestEngine(t)
	ctx := context.Background()

	node := mustCreateClaim(t, eng, "doomed")
	clock.Advance(time.Second)

	tombstone, err := eng.DeleteNode(ctx, node.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tombstone.Operation != core.OpDelete {
		t.Errorf("expected DELETE tombstone, got %s", tombstone.Operation)
	}
	if len(tombstone.Content) != 0 {
		t.Errorf("tombstone carries content: %v", tombstone.Content)
	}

	// The tombstone is the open version; it never closes.
	open, err := st.OpenNodeVersion(ctx, node.ID)
	if err != nil {
		t.Fatalf("open version: %v", err)
	}
	if !open.Tombstone() || !open.Open() {
		t.Errorf("expected open tombstone, got op=%s open=%v", open.Operation, open.Open())
	}

	// Further mutations report the deletion instant.
	_, err = eng.UpdateNode(ctx, node.ID, core.Properties{"statement": "zombie"})
	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	if !nf.DeletedBefore {
		t.Error("expected deleted_before flag")
	}
	if !nf.DeletedAt.Equal(tombstone.ValidFrom) {
		t.Errorf("expected deleted_at %v, got %v", tombstone.ValidFrom, nf.DeletedAt)
	}

	if _, err := eng.DeleteNode(ctx, node.ID); !core.IsNotFound(err) {
		t.Errorf("expected not-found on double delete, got %v", err)
	}
}

func TestCommitInstantsMonotonicUnderFrozenClock(t *testing.T) {
	eng, _, st := newTestEngine(t)
	ctx := context.Background()

	// The clock never advances; each commit must still move forward.
	node := mustCreateClaim(t, eng, "v1")
	for i := 2; i <= 4; i++ {
		if _, err := eng.UpdateNode(ctx, node.ID, core.Properties{"statement": "x"}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	history, err := st.NodeHistory(ctx, node.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for i := 1; i < len(history); i++ {
		if !history[i].ValidFrom.After(history[i-1].ValidFrom) {
			t.Errorf("valid_from not strictly increasing at %d: %v then %v",
				i, history[i-1].ValidFrom, history[i].ValidFrom)
		}
		if !history[i-1].ValidTo.Equal(history[i].ValidFrom) {
			t.Errorf("interval gap at %d", i)
		}
	}
}

func TestCommitInstantsMonotonicUnderClockRegression(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	ctx := context.Background()

	node := mustCreateClaim(t, eng, "v1")

	clock.Set(testBase.Add(-time.Hour))
	updated, err := eng.UpdateNode(ctx, node.ID, core.Properties{"statement": "v2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if want := testBase.Add(time.Nanosecond); !updated.ValidFrom.Equal(want) {
		t.Errorf("expected floor %v under clock regression, got %v", want, updated.ValidFrom)
	}
}

func TestCreateEdge(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")

	edge, err := eng.CreateEdge(ctx, EdgeInput{
		Type:       "Connection",
		SourceID:   a.ID,
		TargetID:   b.ID,
		Properties: core.Properties{"weight": 0.7},
		Notes:      "observed in testing",
	})
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}
	if edge.SourceID != a.ID || edge.TargetID != b.ID {
		t.Errorf("endpoints wrong: %s -> %s", edge.SourceID, edge.TargetID)
	}
	if edge.Notes != "observed in testing" {
		t.Errorf("notes lost: %q", edge.Notes)
	}
	if edge.CompositeID != "" {
		t.Errorf("plain edge has composite id %q", edge.CompositeID)
	}
}

func TestCreateEdgeRejections(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")

	source, err := eng.CreateNode(ctx, NodeInput{
		Label:      "Source",
		Properties: core.Properties{"title": "somewhere"},
	})
	if err != nil {
		t.Fatalf("creating source: %v", err)
	}

	tests := []struct {
		name  string
		in    EdgeInput
		check func(error) bool
	}{
		{
			name:  "unknown type",
			in:    EdgeInput{Type: "Mystery", SourceID: a.ID, TargetID: b.ID},
			check: core.IsSchemaError,
		},
		{
			name:  "disallowed endpoint pair",
			in:    EdgeInput{Type: "Connection", SourceID: a.ID, TargetID: source.ID},
			check: core.IsSchemaError,
		},
		{
			name:  "missing endpoint",
			in:    EdgeInput{Type: "Connection", SourceID: a.ID, TargetID: "no-such-node"},
			check: core.IsNotFound,
		},
		{
			name: "reserved composite_id",
			in: EdgeInput{
				Type:       "Connection",
				SourceID:   a.ID,
				TargetID:   b.ID,
				Properties: core.Properties{"composite_id": "sneaky"},
			},
			check: core.IsSchemaError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.CreateEdge(ctx, tt.in)
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestUpdateEdge(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")
	edge, err := eng.CreateEdge(ctx, EdgeInput{
		Type:       "Connection",
		SourceID:   a.ID,
		TargetID:   b.ID,
		Properties: core.Properties{"weight": 0.5},
	})
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}

	clock.Advance(time.Second)
	updated, err := eng.UpdateEdge(ctx, edge.ID, core.Properties{"logic_type": "NOT"}, "revised")
	if err != nil {
		t.Fatalf("update edge: %v", err)
	}
	if updated.Properties["logic_type"] != "NOT" {
		t.Errorf("logic_type not applied: %v", updated.Properties)
	}
	if _, ok := updated.Properties["weight"]; ok {
		t.Error("stale property survived a full replacement")
	}
	if updated.Notes != "revised" {
		t.Errorf("notes not replaced: %q", updated.Notes)
	}
}

func TestDeleteEdgeAfterEndpointGone(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")
	edge, err := eng.CreateEdge(ctx, EdgeInput{Type: "Connection", SourceID: a.ID, TargetID: b.ID})
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := eng.DeleteNode(ctx, b.ID); err != nil {
		t.Fatalf("delete node: %v", err)
	}

	// Updates across the dead endpoint fail.
	clock.Advance(time.Second)
	_, err = eng.UpdateEdge(ctx, edge.ID, core.Properties{"weight": 0.1}, "")
	if !core.IsEndpointGone(err) {
		t.Errorf("expected endpoint-gone, got %v", err)
	}

	// The edge can still be tombstoned.
	if _, err := eng.DeleteEdge(ctx, edge.ID); err != nil {
		t.Errorf("expected delete to succeed with a dead endpoint, got %v", err)
	}
}

func TestCreateComposite(t *testing.T) {
	eng, _, st := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")
	c := mustCreateClaim(t, eng, "c")

	composite, err := eng.CreateComposite(ctx, CompositeInput{
		LogicType: core.LogicAnd,
		Members: []EdgeInput{
			{Type: "Connection", SourceID: a.ID, TargetID: c.ID},
			{Type: "Connection", SourceID: b.ID, TargetID: c.ID},
		},
	})
	if err != nil {
		t.Fatalf("create composite: %v", err)
	}
	if composite.ID == "" {
		t.Fatal("expected composite id")
	}
	if len(composite.Edges) != 2 {
		t.Fatalf("expected 2 member edges, got %d", len(composite.Edges))
	}
	for _, e := range composite.Edges {
		if e.CompositeID != composite.ID {
			t.Errorf("member %s carries composite id %q", e.ID, e.CompositeID)
		}
		if e.Properties[core.PropLogicType] != "AND" {
			t.Errorf("member %s missing logic_type: %v", e.ID, e.Properties)
		}
	}

	members, err := st.EdgesByComposite(ctx, composite.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 committed members, got %d", len(members))
	}
}

func TestCreateCompositeValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")

	_, err := eng.CreateComposite(ctx, CompositeInput{LogicType: "XOR", Members: []EdgeInput{
		{Type: "Connection", SourceID: a.ID, TargetID: b.ID},
	}})
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for unknown logic type, got %v", err)
	}

	_, err = eng.CreateComposite(ctx, CompositeInput{LogicType: core.LogicOr})
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for empty member list, got %v", err)
	}

	_, err = eng.CreateComposite(ctx, CompositeInput{LogicType: core.LogicOr, Members: []EdgeInput{
		{Type: "Connection", SourceID: a.ID, TargetID: b.ID,
			Properties: core.Properties{"logic_type": "NOT"}},
	}})
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for member-level logic_type, got %v", err)
	}
}

func TestCreateCompositeAtomic(t *testing.T) {
	eng, _, st := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")

	_, err := eng.CreateComposite(ctx, CompositeInput{
		LogicType: core.LogicAnd,
		Members: []EdgeInput{
			{Type: "Connection", SourceID: a.ID, TargetID: b.ID},
			{Type: "Connection", SourceID: "no-such-node", TargetID: b.ID},
		},
	})
	if !core.IsNotFound(err) {
		t.Fatalf("expected not-found for the broken member, got %v", err)
	}

	// Nothing from the failed group is visible.
	neighbors, err := st.NeighborsAt(ctx, a.ID, testBase.Add(time.Hour), core.DirectionBoth, nil)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 0 {
		t.Errorf("failed composite leaked %d edges", len(neighbors))
	}
}

func TestCompositeMemberMutationRules(t *testing.T) {
	eng, clock, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")
	composite, err := eng.CreateComposite(ctx, CompositeInput{
		LogicType: core.LogicNand,
		Members: []EdgeInput{
			{Type: "Connection", SourceID: a.ID, TargetID: b.ID},
		},
	})
	if err != nil {
		t.Fatalf("create composite: %v", err)
	}
	member := composite.Edges[0]

	// Single-member deletes are rejected.
	_, err = eng.DeleteEdge(ctx, member.ID)
	if !core.IsCompositeMember(err) {
		t.Errorf("expected composite-member rejection, got %v", err)
	}

	// Group-managed properties cannot be supplied on update.
	clock.Advance(time.Second)
	_, err = eng.UpdateEdge(ctx, member.ID, core.Properties{"logic_type": "AND"}, "")
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for logic_type on member, got %v", err)
	}
	_, err = eng.UpdateEdge(ctx, member.ID, core.Properties{"composite_id": "other"}, "")
	if !core.IsSchemaError(err) {
		t.Errorf("expected schema error for composite_id on member, got %v", err)
	}

	// A plain update preserves the group fields.
	updated, err := eng.UpdateEdge(ctx, member.ID, core.Properties{"weight": 0.3}, "tuned")
	if err != nil {
		t.Fatalf("member update: %v", err)
	}
	if updated.CompositeID != composite.ID {
		t.Errorf("composite id lost on update: %q", updated.CompositeID)
	}
	if updated.Properties[core.PropLogicType] != "NAND" {
		t.Errorf("logic_type lost on update: %v", updated.Properties)
	}
}

func TestDeleteComposite(t *testing.T) {
	eng, clock, st := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateClaim(t, eng, "a")
	b := mustCreateClaim(t, eng, "b")
	c := mustCreateClaim(t, eng, "c")
	composite, err := eng.CreateComposite(ctx, CompositeInput{
		LogicType: core.LogicOr,
		Members: []EdgeInput{
			{Type: "Connection", SourceID: a.ID, TargetID: c.ID},
			{Type: "Connection", SourceID: b.ID, TargetID: c.ID},
		},
	})
	if err != nil {
		t.Fatalf("create composite: %v", err)
	}

	clock.Advance(time.Second)
	if err := eng.DeleteComposite(ctx, composite.ID); err != nil {
		t.Fatalf("delete composite: %v", err)
	}

	for _, e := range composite.Edges {
		open, err := st.OpenEdgeVersion(ctx, e.ID)
		if err != nil {
			t.Fatalf("open version of %s: %v", e.ID, err)
		}
		if !open.Tombstone() {
			t.Errorf("member %s not tombstoned", e.ID)
		}
	}

	if err := eng.DeleteComposite(ctx, composite.ID); !core.IsNotFound(err) {
		t.Errorf("expected not-found on double delete, got %v", err)
	}
}

// conflictStore fails every commit with a version conflict.
type conflictStore struct {
	store.Store
	mu      sync.Mutex
	commits int
}

func (s *conflictStore) OpenNodeVersion(ctx context.Context, nodeID string) (*core.NodeVersion, error) {
	return &core.NodeVersion{
		VersionID: "open-1",
		NodeID:    nodeID,
		Label:     "Claim",
		Operation: core.OpCreate,
		Content:   core.Properties{"statement": "x"},
		Timestamp: testBase,
		ValidFrom: testBase,
	}, nil
}

func (s *conflictStore) CommitNodeVersion(ctx context.Context, expected string, next *core.NodeVersion) error {
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return core.ErrConflict
}

func TestRetryBudgetExhausted(t *testing.T) {
	st := &conflictStore{}
	cfg := Config{
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 2 * time.Millisecond,
		RetryJitter:     0,
	}
	eng := New(st, schema.Default(), cfg, quietLogger())

	_, err := eng.UpdateNode(context.Background(), "n1", core.Properties{"statement": "y"})

	var exhausted *core.ConcurrencyExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected concurrency-exhausted, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if !core.IsConflict(err) {
		t.Error("exhausted error should unwrap to the final conflict")
	}
	if st.commits != 3 {
		t.Errorf("expected 3 commit attempts, got %d", st.commits)
	}
}

func TestRetryStopsOnDefinitiveError(t *testing.T) {
	st := &conflictStore{}
	cfg := Config{
		MaxRetries:      5,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 2 * time.Millisecond,
		RetryJitter:     0,
	}
	eng := New(st, schema.Default(), cfg, quietLogger())

	// Schema failures happen before any commit and are never retried.
	_, err := eng.UpdateNode(context.Background(), "n1", core.Properties{"statement": 42})
	if !core.IsSchemaError(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if st.commits != 0 {
		t.Errorf("expected no commit attempts, got %d", st.commits)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	st := &conflictStore{}
	cfg := Config{
		MaxRetries:      1000,
		RetryBackoff:    50 * time.Millisecond,
		MaxRetryBackoff: 50 * time.Millisecond,
		RetryJitter:     0,
	}
	eng := New(st, schema.Default(), cfg, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := eng.UpdateNode(ctx, "n1", core.Properties{"statement": "y"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	eng, _, st := newTestEngine(t)
	ctx := context.Background()
	node := mustCreateClaim(t, eng, "origin")

	// With N writers a given writer can lose at most N-1 races, so the
	// default retry budget absorbs every conflict here.
	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.UpdateNode(ctx, node.ID, core.Properties{
				"statement": fmt.Sprintf("writer-%d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update failed: %v", err)
		}
	}

	history, err := st.NodeHistory(ctx, node.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// Each applied update appends exactly one version.
	if len(history) != writers+1 {
		t.Fatalf("expected %d versions, got %d", writers+1, len(history))
	}

	seen := make(map[string]bool)
	for i, v := range history {
		if i > 0 {
			if !v.ValidFrom.After(history[i-1].ValidFrom) {
				t.Errorf("version %d not after its predecessor", i)
			}
			if !history[i-1].ValidTo.Equal(v.ValidFrom) {
				t.Errorf("intervals do not chain at version %d", i)
			}
			seen[v.Content["statement"].(string)] = true
		}
		if open := v.Open(); open != (i == len(history)-1) {
			t.Errorf("version %d open=%v, want %v", i, open, i == len(history)-1)
		}
	}
	if len(seen) != writers {
		t.Errorf("expected %d distinct committed statements, got %d", writers, len(seen))
	}
}
