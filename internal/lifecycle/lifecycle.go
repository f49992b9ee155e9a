// ABOUTME: Conversation lifecycle manager for open/close/resolve/reopen/reassign
// ABOUTME: Validates transitions, then delegates to transactional store operations

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/luminahq/livedesk/internal/store"
)

// ErrInvalidTransition is returned when an operation does not apply to the
// room's current state (e.g. closing an already-closed room)
var ErrInvalidTransition = errors.New("invalid conversation transition")

// RoomStore defines what the manager needs from storage
type RoomStore interface {
	CreateVisitor(ctx context.Context, v *store.Visitor) error
	GetVisitor(ctx context.Context, id string) (*store.Visitor, error)

	CreateRoom(ctx context.Context, room *store.Room) error
	GetRoom(ctx context.Context, id string) (*store.Room, error)
	CloseRoom(ctx context.Context, roomID string, pending bool, closedAt time.Time) error
	ResolveRoom(ctx context.Context, roomID string) error
	ReopenRoom(ctx context.Context, roomID, newAttendantID string) error
	ReassignRoom(ctx context.Context, roomID string, expectedOwner *string, newAttendantID string) error

	SaveMessage(ctx context.Context, msg *store.Message) error
	GetRoomMessages(ctx context.Context, roomID string, includeInternal bool, limit int) ([]*store.Message, error)
}

// Manager drives room lifecycle transitions. State validation happens here;
// the store enforces atomicity, capacity guards, and race detection, so a
// store.ErrConflict surfacing from a validated call means a concurrent
// transition won.
type Manager struct {
	store  RoomStore
	logger *slog.Logger
}

// New creates a manager. Pass nil logger for default.
func New(s RoomStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		logger: logger.With("component", "lifecycle"),
	}
}

// RegisterVisitor creates a visitor with a fresh opaque correlation token for
// the chat widget.
func (m *Manager) RegisterVisitor(ctx context.Context, displayName string) (*store.Visitor, error) {
	if displayName == "" {
		displayName = "Visitor"
	}
	v := &store.Visitor{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Token:       uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.CreateVisitor(ctx, v); err != nil {
		return nil, fmt.Errorf("registering visitor: %w", err)
	}
	m.logger.Info("visitor registered", "id", v.ID)
	return v, nil
}

// Start opens a new room for a visitor under the given attendant. The owner's
// active counter increments in the same transaction that creates the room;
// a full attendant yields store.ErrCapacityExceeded and no room.
func (m *Manager) Start(ctx context.Context, visitorID, attendantID string) (*store.Room, error) {
	if attendantID == "" {
		return nil, fmt.Errorf("attendant_id is required")
	}
	if _, err := m.store.GetVisitor(ctx, visitorID); err != nil {
		return nil, fmt.Errorf("resolving visitor: %w", err)
	}

	now := time.Now().UTC()
	room := &store.Room{
		ID:          uuid.New().String(),
		VisitorID:   visitorID,
		AttendantID: &attendantID,
		Status:      store.RoomOpen,
		Resolution:  store.ResolutionNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	m.logger.Info("conversation started", "room_id", room.ID, "visitor", visitorID, "attendant", attendantID)
	return room, nil
}

// Get returns a room by ID.
func (m *Manager) Get(ctx context.Context, roomID string) (*store.Room, error) {
	return m.store.GetRoom(ctx, roomID)
}

// Close ends an open conversation. pending marks it for later follow-up and
// keeps it on the owner's pending-work list; otherwise it closes fully
// resolved. Either way the owner's active counter frees up immediately.
func (m *Manager) Close(ctx context.Context, roomID string, pending bool) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Open() {
		return fmt.Errorf("%w: room %s is not open", ErrInvalidTransition, roomID)
	}

	if err := m.store.CloseRoom(ctx, roomID, pending, time.Now().UTC()); err != nil {
		return err
	}
	m.logger.Info("conversation closed", "room_id", roomID, "pending", pending)
	return nil
}

// Resolve completes a conversation that was closed pending follow-up.
func (m *Manager) Resolve(ctx context.Context, roomID string) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.PendingResolution() {
		return fmt.Errorf("%w: room %s is not awaiting resolution", ErrInvalidTransition, roomID)
	}

	if err := m.store.ResolveRoom(ctx, roomID); err != nil {
		return err
	}
	m.logger.Info("conversation resolved", "room_id", roomID)
	return nil
}

// Reopen returns a pending-resolution conversation to the open state, e.g.
// when the visitor comes back. The owner stays put unless newAttendantID is
// given; whoever ends up owning it must have free capacity.
func (m *Manager) Reopen(ctx context.Context, roomID, newAttendantID string) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.PendingResolution() {
		return fmt.Errorf("%w: room %s is not awaiting resolution", ErrInvalidTransition, roomID)
	}

	if err := m.store.ReopenRoom(ctx, roomID, newAttendantID); err != nil {
		return err
	}
	m.logger.Info("conversation reopened", "room_id", roomID)
	return nil
}

// Reassign transfers a conversation to another attendant and lands it open,
// reopening it first when it was closed pending resolution. The transfer is
// compare-and-swap on the owner observed here: when two reassignments race,
// exactly one wins and the loser gets store.ErrConflict with nothing applied.
func (m *Manager) Reassign(ctx context.Context, roomID, newAttendantID string) error {
	if newAttendantID == "" {
		return fmt.Errorf("new attendant_id is required")
	}
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Open() && !room.PendingResolution() {
		return fmt.Errorf("%w: room %s is fully resolved", ErrInvalidTransition, roomID)
	}

	if err := m.store.ReassignRoom(ctx, roomID, room.AttendantID, newAttendantID); err != nil {
		return err
	}
	m.logger.Info("conversation reassigned", "room_id", roomID, "attendant", newAttendantID)
	return nil
}

// PostMessage appends a visitor or attendant message to an open room.
func (m *Manager) PostMessage(ctx context.Context, roomID string, sender store.SenderType, senderID, content string) (*store.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Open() {
		return nil, fmt.Errorf("%w: room %s is not open", ErrInvalidTransition, roomID)
	}

	msg := &store.Message{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderType: sender,
		SenderID:   senderID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddInternalNote appends an attendant-only note to a room. Notes are
// append-only and allowed in any room state, so attendants can annotate
// conversations that already closed.
func (m *Manager) AddInternalNote(ctx context.Context, roomID, attendantID, content string) (*store.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderType: store.SenderAttendant,
		SenderID:   attendantID,
		Content:    content,
		Internal:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	m.logger.Debug("internal note added", "room_id", roomID, "attendant", attendantID)
	return msg, nil
}

// Transcript returns a room's messages in chronological order. Visitor-facing
// callers pass includeInternal=false so notes stay private.
func (m *Manager) Transcript(ctx context.Context, roomID string, includeInternal bool, limit int) ([]*store.Message, error) {
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return m.store.GetRoomMessages(ctx, roomID, includeInternal, limit)
}
