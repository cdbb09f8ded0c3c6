// Package api exposes the versioned graph over HTTP. Handlers are thin:
// decode, call the engine or query service, map the domain error taxonomy
// onto statuses, encode.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
	"github.com/chronograph-db/chronograph/internal/chrono/engine"
	"github.com/chronograph-db/chronograph/internal/chrono/query"
	"github.com/chronograph-db/chronograph/internal/chrono/watch"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	engine *engine.Engine
	query  *query.Service
	hub    *watch.Hub
	logger *slog.Logger
}

// New creates an API server. hub may be nil to disable notifications.
func New(eng *engine.Engine, q *query.Service, hub *watch.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: eng, query: q, hub: hub, logger: logger}
}

func (s *Server) emit(event watch.Event) {
	if s.hub != nil {
		s.hub.Emit(event)
	}
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error         string     `json:"error"`
	Kind          string     `json:"kind,omitempty"`
	Field         string     `json:"field,omitempty"`
	DeletedBefore bool       `json:"deleted_before,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// writeError maps the domain error taxonomy onto HTTP statuses: schema
// violations are 422, absent entities 404, and every concurrency or
// identity failure 409.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var se *core.SchemaError
	if errors.As(err, &se) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: se.Error(),
			Kind:  string(se.Kind),
			Field: se.Field,
		})
		return
	}

	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		resp := errorResponse{Error: nf.Error(), Kind: "NOT_FOUND"}
		if nf.DeletedBefore {
			resp.DeletedBefore = true
			deletedAt := nf.DeletedAt
			resp.DeletedAt = &deletedAt
		}
		writeJSON(w, http.StatusNotFound, resp)
		return
	}

	if errors.Is(err, watch.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "NOT_FOUND"})
		return
	}

	switch {
	case core.IsConcurrencyExhausted(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "CONCURRENCY_EXHAUSTED"})
	case core.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "CONFLICT"})
	case core.IsEndpointGone(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "ENDPOINT_GONE"})
	case core.IsIdentityConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "IDENTITY_CONFLICT"})
	case core.IsCompositeMember(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "COMPOSITE_MEMBER"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// parseAsOf reads the as_of query parameter. A zero time means "now".
func parseAsOf(r *http.Request) (time.Time, error) {
	asOfStr := r.URL.Query().Get("as_of")
	if asOfStr == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, asOfStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of parameter (use RFC3339 format)")
	}
	return t, nil
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSchema handles GET /api/schema
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	reg := s.engine.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"strict_properties": reg.Strict(),
		"node_labels":       reg.NodeLabels(),
		"edge_types":        reg.EdgeTypes(),
	})
}

// CreateNodeRequest is the request body for creating a node
type CreateNodeRequest struct {
	Label      string          `json:"label"`
	Properties core.Properties `json:"properties"`
}

// CreateNode handles POST /api/nodes
func (s *Server) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	node, err := s.engine.CreateNode(r.Context(), engine.NodeInput{
		Label:      req.Label,
		Properties: req.Properties,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:      watch.EventNodeCreated,
		NodeID:    node.ID,
		NodeLabel: node.Label,
		VersionID: node.VersionID,
	})
	writeJSON(w, http.StatusCreated, node)
}

// GetNode handles GET /api/nodes/{id}
// Supports ?as_of=RFC3339 for point-in-time reads.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asOf, err := parseAsOf(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	node, err := s.query.Node(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// UpdateNodeRequest is the request body for updating a node. Properties
// replace the previous set wholesale.
type UpdateNodeRequest struct {
	Properties core.Properties `json:"properties"`
}

// UpdateNode handles PATCH /api/nodes/{id}
func (s *Server) UpdateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	node, err := s.engine.UpdateNode(r.Context(), id, req.Properties)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:      watch.EventNodeUpdated,
		NodeID:    node.ID,
		NodeLabel: node.Label,
		VersionID: node.VersionID,
	})
	writeJSON(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /api/nodes/{id}
func (s *Server) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tombstone, err := s.engine.DeleteNode(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:      watch.EventNodeDeleted,
		NodeID:    id,
		NodeLabel: tombstone.Label,
		VersionID: tombstone.VersionID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"tombstoned": true,
		"id":         id,
		"deleted_at": tombstone.ValidFrom,
	})
}

// GetNeighbors handles GET /api/nodes/{id}/neighbors
// Supports ?direction=out|in|both, repeated ?edge_type=, and ?as_of=.
func (s *Server) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	asOf, err := parseAsOf(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	direction, ok := core.ParseDirection(q.Get("direction"))
	if !ok {
		writeBadRequest(w, fmt.Errorf("invalid direction parameter (use out, in, or both)"))
		return
	}

	neighbors, err := s.query.Neighbors(r.Context(), id, query.NeighborOptions{
		Direction: direction,
		EdgeTypes: q["edge_type"],
		AsOf:      asOf,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":   id,
		"neighbors": neighbors,
		"count":     len(neighbors),
	})
}

// Traverse handles GET /api/nodes/{id}/traverse
// Supports ?depth=N, repeated ?edge_type=, and ?as_of=.
func (s *Server) Traverse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	asOf, err := parseAsOf(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	depth := query.DefaultTraverseDepth
	if d := q.Get("depth"); d != "" {
		if _, err := fmt.Sscanf(d, "%d", &depth); err != nil || depth <= 0 {
			writeBadRequest(w, fmt.Errorf("invalid depth parameter"))
			return
		}
	}
	if depth > query.MaxTraverseDepth {
		depth = query.MaxTraverseDepth
	}

	nodes, err := s.query.Traverse(r.Context(), id, query.TraverseOptions{
		MaxDepth:  depth,
		EdgeTypes: q["edge_type"],
		AsOf:      asOf,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start": id,
		"depth": depth,
		"nodes": nodes,
		"count": len(nodes),
	})
}

// CreateEdgeRequest is the request body for creating an edge
type CreateEdgeRequest struct {
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Target     string          `json:"target"`
	Properties core.Properties `json:"properties"`
	Notes      string          `json:"notes,omitempty"`
}

// CreateEdge handles POST /api/edges
func (s *Server) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req CreateEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	edge, err := s.engine.CreateEdge(r.Context(), engine.EdgeInput{
		Type:       req.Type,
		SourceID:   req.Source,
		TargetID:   req.Target,
		Properties: req.Properties,
		Notes:      req.Notes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:      watch.EventEdgeCreated,
		EdgeID:    edge.ID,
		EdgeType:  edge.Type,
		SourceID:  edge.SourceID,
		TargetID:  edge.TargetID,
		VersionID: edge.VersionID,
	})
	writeJSON(w, http.StatusCreated, edge)
}

// GetEdge handles GET /api/edges/{id}
// Supports ?as_of=RFC3339 for point-in-time reads.
func (s *Server) GetEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asOf, err := parseAsOf(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	edge, err := s.query.Edge(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

// UpdateEdgeRequest is the request body for updating an edge. Properties
// and notes replace the previous values wholesale.
type UpdateEdgeRequest struct {
	Properties core.Properties `json:"properties"`
	Notes      string          `json:"notes,omitempty"`
}

// UpdateEdge handles PATCH /api/edges/{id}
func (s *Server) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	edge, err := s.engine.UpdateEdge(r.Context(), id, req.Properties, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:        watch.EventEdgeUpdated,
		EdgeID:      edge.ID,
		EdgeType:    edge.Type,
		SourceID:    edge.SourceID,
		TargetID:    edge.TargetID,
		CompositeID: edge.CompositeID,
		VersionID:   edge.VersionID,
	})
	writeJSON(w, http.StatusOK, edge)
}

// DeleteEdge handles DELETE /api/edges/{id}
func (s *Server) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tombstone, err := s.engine.DeleteEdge(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:      watch.EventEdgeDeleted,
		EdgeID:    id,
		EdgeType:  tombstone.EdgeType,
		SourceID:  tombstone.SourceID,
		TargetID:  tombstone.TargetID,
		VersionID: tombstone.VersionID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"tombstoned": true,
		"id":         id,
		"deleted_at": tombstone.ValidFrom,
	})
}

// CompositeMemberRequest is one member edge of a composite create request
type CompositeMemberRequest struct {
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Target     string          `json:"target"`
	Properties core.Properties `json:"properties,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// CreateCompositeRequest is the request body for creating a composite group
type CreateCompositeRequest struct {
	LogicType string                   `json:"logic_type"`
	Members   []CompositeMemberRequest `json:"members"`
}

// CreateComposite handles POST /api/composites
func (s *Server) CreateComposite(w http.ResponseWriter, r *http.Request) {
	var req CreateCompositeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	members := make([]engine.EdgeInput, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, engine.EdgeInput{
			Type:       m.Type,
			SourceID:   m.Source,
			TargetID:   m.Target,
			Properties: m.Properties,
			Notes:      m.Notes,
		})
	}

	composite, err := s.engine.CreateComposite(r.Context(), engine.CompositeInput{
		LogicType: core.LogicType(req.LogicType),
		Members:   members,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:        watch.EventCompositeCreated,
		CompositeID: composite.ID,
	})
	writeJSON(w, http.StatusCreated, composite)
}

// GetComposite handles GET /api/composites/{id}
func (s *Server) GetComposite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	composite, err := s.query.Composite(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, composite)
}

// DeleteComposite handles DELETE /api/composites/{id}
func (s *Server) DeleteComposite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.DeleteComposite(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.emit(watch.Event{
		Type:        watch.EventCompositeDeleted,
		CompositeID: id,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"tombstoned":   true,
		"composite_id": id,
	})
}

// GetEntity handles GET /api/entities/{id}
// Resolves an id of unknown kind. Supports ?as_of=RFC3339.
func (s *Server) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asOf, err := parseAsOf(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	view, err := s.query.Entity(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetHistory handles GET /api/entities/{id}/history
// Returns all versions earliest first, tombstones included.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	versions, err := s.query.History(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"versions":  versions,
		"count":     len(versions),
	})
}

// CreateSubscription handles POST /api/subscriptions
func (s *Server) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "watch hub not initialized"})
		return
	}

	var req watch.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	sub, err := s.hub.Register(&req)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/subscriptions
func (s *Server) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "watch hub not initialized"})
		return
	}

	subs := s.hub.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// GetSubscription handles GET /api/subscriptions/{id}
func (s *Server) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "watch hub not initialized"})
		return
	}

	sub, err := s.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateSubscription handles PATCH /api/subscriptions/{id}
func (s *Server) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "watch hub not initialized"})
		return
	}

	var req watch.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	sub, err := s.hub.Update(chi.URLParam(r, "id"), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubscription handles DELETE /api/subscriptions/{id}
func (s *Server) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "watch hub not initialized"})
		return
	}

	if err := s.hub.Unregister(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
