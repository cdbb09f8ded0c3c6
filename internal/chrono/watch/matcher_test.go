package watch

import "testing"

func TestPatternMatches(t *testing.T) {
	nodeEvent := Event{Type: EventNodeCreated, NodeID: "n1", NodeLabel: "Claim"}
	edgeEvent := Event{Type: EventEdgeCreated, EdgeID: "e1", EdgeType: "Connection"}

	tests := []struct {
		name    string
		pattern Pattern
		event   Event
		want    bool
	}{
		{
			name:    "empty pattern matches everything",
			pattern: Pattern{},
			event:   nodeEvent,
			want:    true,
		},
		{
			name:    "event type match",
			pattern: Pattern{EventTypes: []string{EventNodeCreated, EventNodeDeleted}},
			event:   nodeEvent,
			want:    true,
		},
		{
			name:    "event type mismatch",
			pattern: Pattern{EventTypes: []string{EventNodeDeleted}},
			event:   nodeEvent,
			want:    false,
		},
		{
			name:    "node label match",
			pattern: Pattern{NodeLabels: []string{"Claim"}},
			event:   nodeEvent,
			want:    true,
		},
		{
			name:    "node label mismatch",
			pattern: Pattern{NodeLabels: []string{"Source"}},
			event:   nodeEvent,
			want:    false,
		},
		{
			name:    "label filter ignores events without a label",
			pattern: Pattern{NodeLabels: []string{"Claim"}},
			event:   edgeEvent,
			want:    true,
		},
		{
			name:    "edge type match",
			pattern: Pattern{EdgeTypes: []string{"Connection"}},
			event:   edgeEvent,
			want:    true,
		},
		{
			name:    "edge type mismatch",
			pattern: Pattern{EdgeTypes: []string{"CitedBy"}},
			event:   edgeEvent,
			want:    false,
		},
		{
			name:    "edge filter ignores node events",
			pattern: Pattern{EdgeTypes: []string{"Connection"}},
			event:   nodeEvent,
			want:    true,
		},
		{
			name: "all criteria must hold",
			pattern: Pattern{
				EventTypes: []string{EventNodeCreated},
				NodeLabels: []string{"Source"},
			},
			event: nodeEvent,
			want:  false,
		},
		{
			name: "combined criteria satisfied",
			pattern: Pattern{
				EventTypes: []string{EventNodeCreated},
				NodeLabels: []string{"Claim"},
			},
			event: nodeEvent,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
