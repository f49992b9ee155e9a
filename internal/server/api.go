// ABOUTME: HTTP API handlers for the attendant workspace
// ABOUTME: JSON request/response types and the domain-error to status mapping

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/luminahq/livedesk/internal/assign"
	"github.com/luminahq/livedesk/internal/lifecycle"
	"github.com/luminahq/livedesk/internal/registry"
	"github.com/luminahq/livedesk/internal/store"
)

// CreateAttendantRequest is the JSON request body for POST /api/attendants.
type CreateAttendantRequest struct {
	UserID           string `json:"user_id"`
	ManagerID        string `json:"manager_id"`
	MaxConversations *int   `json:"max_conversations"`
}

// SetStatusRequest is the JSON request body for PUT /api/attendants/{id}/status.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// AttendantResponse is the JSON rendering of an attendant profile.
type AttendantResponse struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	ManagerID           string `json:"manager_id"`
	Status              string `json:"status"`
	MaxConversations    *int   `json:"max_conversations"`
	ActiveConversations int    `json:"active_conversations"`
	Capacity            string `json:"capacity"`
}

// RegisterVisitorRequest is the JSON request body for POST /api/visitors.
type RegisterVisitorRequest struct {
	DisplayName string `json:"display_name"`
}

// VisitorResponse is the JSON rendering of a visitor.
type VisitorResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
}

// StartRoomRequest is the JSON request body for POST /api/rooms. Leave
// attendant_id empty to use automatic selection when assignment.auto is on.
type StartRoomRequest struct {
	VisitorID   string `json:"visitor_id"`
	AttendantID string `json:"attendant_id"`
}

// CloseRoomRequest is the JSON request body for POST /api/rooms/{id}/close.
type CloseRoomRequest struct {
	Pending bool `json:"pending"`
}

// TransferRequest is the JSON request body for reopen and reassign.
type TransferRequest struct {
	AttendantID string `json:"attendant_id"`
}

// RoomResponse is the JSON rendering of a room.
type RoomResponse struct {
	ID          string     `json:"id"`
	VisitorID   string     `json:"visitor_id"`
	AttendantID *string    `json:"attendant_id"`
	Status      string     `json:"status"`
	Resolution  string     `json:"resolution"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PostMessageRequest is the JSON request body for POST /api/rooms/{id}/messages.
type PostMessageRequest struct {
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
	Content    string `json:"content"`
	Internal   bool   `json:"internal"`
}

// MessageResponse is the JSON rendering of a message.
type MessageResponse struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderType string    `json:"sender_type"`
	SenderID   string    `json:"sender_id"`
	Content    string    `json:"content"`
	Internal   bool      `json:"internal"`
	CreatedAt  time.Time `json:"created_at"`
}

func attendantResponse(att *store.Attendant) AttendantResponse {
	return AttendantResponse{
		ID:                  att.ID,
		UserID:              att.UserID,
		ManagerID:           att.ManagerID,
		Status:              string(att.Status),
		MaxConversations:    att.MaxConversations,
		ActiveConversations: att.ActiveConversations,
		Capacity:            att.CapacityLabel(),
	}
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		VisitorID:   room.VisitorID,
		AttendantID: room.AttendantID,
		Status:      string(room.Status),
		Resolution:  string(room.Resolution),
		ClosedAt:    room.ClosedAt,
		CreatedAt:   room.CreatedAt,
	}
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		SenderType: string(msg.SenderType),
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		Internal:   msg.Internal,
		CreatedAt:  msg.CreatedAt,
	}
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// writeError writes a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain errors onto HTTP statuses. Anything not in the
// taxonomy is a transient store failure: logged and surfaced as a 500 so the
// caller can retry.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrCapacityExceeded):
		s.writeError(w, http.StatusConflict, "attendant at capacity")
	case errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusConflict, "conflicting transition")
	case errors.Is(err, store.ErrDuplicateVisitor):
		s.writeError(w, http.StatusConflict, "visitor already exists")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, registry.ErrInvalidStatus):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, assign.ErrNoneAvailable):
		s.writeError(w, http.StatusConflict, "no attendant available")
	default:
		s.logger.Error("internal error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleRegisterVisitor(w http.ResponseWriter, r *http.Request) {
	var req RegisterVisitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := s.deps.Lifecycle.RegisterVisitor(r.Context(), req.DisplayName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, VisitorResponse{
		ID:          v.ID,
		DisplayName: v.DisplayName,
		Token:       v.Token,
	})
}

func (s *Server) handleListAttendants(w http.ResponseWriter, r *http.Request) {
	attendants, err := s.deps.Registry.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := make([]AttendantResponse, 0, len(attendants))
	for _, att := range attendants {
		resp = append(resp, attendantResponse(att))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAttendant(w http.ResponseWriter, r *http.Request) {
	var req CreateAttendantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	att, err := s.deps.Registry.Create(r.Context(), req.UserID, req.ManagerID, req.MaxConversations)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, attendantResponse(att))
}

func (s *Server) handleGetAttendant(w http.ResponseWriter, r *http.Request) {
	att, err := s.deps.Registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, attendantResponse(att))
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.deps.Registry.SetStatus(r.Context(), r.PathValue("id"), store.AttendantStatus(req.Status))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEligible returns the candidate pool for manual selection. An empty
// pool is a 200 with an empty list; the UI renders the empty state.
func (s *Server) handleEligible(w http.ResponseWriter, r *http.Request) {
	eligible, err := s.deps.Engine.Eligible(r.Context(), r.URL.Query().Get("exclude"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := make([]AttendantResponse, 0, len(eligible))
	for _, att := range eligible {
		resp = append(resp, attendantResponse(att))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePendingView(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.deps.Pending.ForAttendant(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	var req StartRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VisitorID == "" {
		s.writeError(w, http.StatusBadRequest, "visitor_id is required")
		return
	}

	attendantID := req.AttendantID
	if attendantID == "" {
		if !s.config.Assignment.Auto {
			s.writeError(w, http.StatusBadRequest, "attendant_id is required")
			return
		}
		chosen, err := s.deps.Engine.Select(r.Context(), "")
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		attendantID = chosen.ID
	}

	room, err := s.deps.Lifecycle.Start(r.Context(), req.VisitorID, attendantID)
	if err != nil {
		s.deps.Metrics.RecordTransitionFailure("start", reasonLabel(err))
		s.writeDomainError(w, err)
		return
	}
	s.deps.Metrics.RecordTransition("start")
	s.writeJSON(w, http.StatusCreated, roomResponse(room))
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.deps.Lifecycle.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roomResponse(room))
}

func (s *Server) handleCloseRoom(w http.ResponseWriter, r *http.Request) {
	var req CloseRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.deps.Lifecycle.Close(r.Context(), r.PathValue("id"), req.Pending); err != nil {
		s.deps.Metrics.RecordTransitionFailure("close", reasonLabel(err))
		s.writeDomainError(w, err)
		return
	}
	s.deps.Metrics.RecordTransition("close")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Lifecycle.Resolve(r.Context(), r.PathValue("id")); err != nil {
		s.deps.Metrics.RecordTransitionFailure("resolve", reasonLabel(err))
		s.writeDomainError(w, err)
		return
	}
	s.deps.Metrics.RecordTransition("resolve")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReopenRoom(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.deps.Lifecycle.Reopen(r.Context(), r.PathValue("id"), req.AttendantID); err != nil {
		s.deps.Metrics.RecordTransitionFailure("reopen", reasonLabel(err))
		s.writeDomainError(w, err)
		return
	}
	s.deps.Metrics.RecordTransition("reopen")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReassignRoom(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AttendantID == "" {
		s.writeError(w, http.StatusBadRequest, "attendant_id is required")
		return
	}

	if err := s.deps.Lifecycle.Reassign(r.Context(), r.PathValue("id"), req.AttendantID); err != nil {
		s.deps.Metrics.RecordTransitionFailure("reassign", reasonLabel(err))
		s.writeDomainError(w, err)
		return
	}
	s.deps.Metrics.RecordTransition("reassign")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	roomID := r.PathValue("id")
	var msg *store.Message
	var err error
	if req.Internal {
		msg, err = s.deps.Lifecycle.AddInternalNote(r.Context(), roomID, req.SenderID, req.Content)
	} else {
		sender := store.SenderType(req.SenderType)
		if sender != store.SenderVisitor && sender != store.SenderAttendant {
			s.writeError(w, http.StatusBadRequest, "sender_type must be visitor or attendant")
			return
		}
		msg, err = s.deps.Lifecycle.PostMessage(r.Context(), roomID, sender, req.SenderID, req.Content)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.deps.Metrics.RecordMessage(string(msg.SenderType), msg.Internal)
	s.writeJSON(w, http.StatusCreated, messageResponse(msg))
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	includeInternal := r.URL.Query().Get("include_internal") == "true"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := s.deps.Lifecycle.Transcript(r.Context(), r.PathValue("id"), includeInternal, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, messageResponse(msg))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// reasonLabel collapses a domain error into a low-cardinality metric label.
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}
