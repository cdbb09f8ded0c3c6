package watch

// Matches reports whether the event satisfies every criterion of the
// pattern. Label and edge-type criteria only constrain events that carry
// the corresponding field.
func (p Pattern) Matches(event Event) bool {
	if len(p.EventTypes) > 0 && !contains(p.EventTypes, event.Type) {
		return false
	}
	if len(p.NodeLabels) > 0 && event.NodeLabel != "" && !contains(p.NodeLabels, event.NodeLabel) {
		return false
	}
	if len(p.EdgeTypes) > 0 && event.EdgeType != "" && !contains(p.EdgeTypes, event.EdgeType) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
