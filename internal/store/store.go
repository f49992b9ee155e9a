// ABOUTME: Store interface and data types for livedesk persistence
// ABOUTME: Defines Attendant, Room, Visitor, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrCapacityExceeded is returned when an attendant has no free conversation slots
var ErrCapacityExceeded = errors.New("attendant at capacity")

// ErrConflict is returned when a conditional update lost against a concurrent
// transition (e.g. two reassignments racing for the same room)
var ErrConflict = errors.New("conflicting transition")

// ErrDuplicateVisitor is returned when a visitor token is already registered
var ErrDuplicateVisitor = errors.New("visitor already exists")

// AttendantStatus is the presence state of an attendant
type AttendantStatus string

const (
	AttendantOnline  AttendantStatus = "online"
	AttendantOffline AttendantStatus = "offline"
	AttendantAway    AttendantStatus = "away"
)

// Valid reports whether the status is one of the known presence states.
func (s AttendantStatus) Valid() bool {
	switch s {
	case AttendantOnline, AttendantOffline, AttendantAway:
		return true
	}
	return false
}

// Attendant represents a human support agent able to hold conversations
// up to a capacity limit.
type Attendant struct {
	ID        string
	UserID    string
	ManagerID string
	Status    AttendantStatus

	// MaxConversations is the capacity ceiling. nil means unbounded.
	MaxConversations *int

	// ActiveConversations is the cached count of rooms currently open under
	// this attendant. It is reconciled inside the same transaction as every
	// assignment, close, and reassignment.
	ActiveConversations int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCapacity reports whether the attendant can take one more open conversation.
func (a *Attendant) HasCapacity() bool {
	if a.MaxConversations == nil {
		return true
	}
	return a.ActiveConversations < *a.MaxConversations
}

// CapacityLabel renders the capacity ceiling for operators ("∞" when unbounded).
func (a *Attendant) CapacityLabel() string {
	if a.MaxConversations == nil {
		return "∞"
	}
	return strconv.Itoa(*a.MaxConversations)
}

// RoomStatus is the open/closed state of a room
type RoomStatus string

const (
	RoomOpen   RoomStatus = "open"
	RoomClosed RoomStatus = "closed"
)

// Resolution qualifies a closed room
type Resolution string

const (
	ResolutionNone     Resolution = "none"
	ResolutionPending  Resolution = "pending"
	ResolutionResolved Resolution = "resolved"
)

// Room represents a single conversation thread between one visitor and at
// most one attendant at a time. Rooms are never physically deleted.
type Room struct {
	ID          string
	VisitorID   string
	AttendantID *string // nil before first assignment
	Status      RoomStatus
	Resolution  Resolution
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Open reports whether the room is currently open.
func (r *Room) Open() bool { return r.Status == RoomOpen }

// PendingResolution reports whether the room awaits a follow-up action.
func (r *Room) PendingResolution() bool {
	return r.Status == RoomClosed && r.Resolution == ResolutionPending
}

// Visitor represents an end user of the chat widget. The token is an opaque
// value used by the unauthenticated widget for client-side correlation.
type Visitor struct {
	ID          string
	DisplayName string
	Token       string
	CreatedAt   time.Time
}

// SenderType identifies who authored a message
type SenderType string

const (
	SenderVisitor   SenderType = "visitor"
	SenderAttendant SenderType = "attendant"
)

// Message represents a single message within a room. Messages with
// Internal set are attendant-authored notes never shown to the visitor.
type Message struct {
	ID         string
	RoomID     string
	SenderType SenderType
	SenderID   string
	Content    string
	Internal   bool
	CreatedAt  time.Time
}

// PendingRoom is a pending-resolution room joined with the data the
// Pending-Work View needs: the visitor's name and the latest visitor-authored
// message (untruncated; the view layer applies the preview limit).
type PendingRoom struct {
	RoomID      string
	VisitorID   string
	VisitorName string
	LastMessage string
	ClosedAt    time.Time
}

// Store defines the interface for livedesk persistence.
type Store interface {
	// Attendants
	CreateAttendant(ctx context.Context, att *Attendant) error
	GetAttendant(ctx context.Context, id string) (*Attendant, error)
	ListAttendants(ctx context.Context) ([]*Attendant, error)
	SetAttendantStatus(ctx context.Context, id string, status AttendantStatus) error

	// Visitors
	CreateVisitor(ctx context.Context, v *Visitor) error
	GetVisitor(ctx context.Context, id string) (*Visitor, error)
	GetVisitorByToken(ctx context.Context, token string) (*Visitor, error)

	// Rooms. The transition methods run as single transactions that update
	// the room row and the affected attendant counters together.
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListRoomsByAttendant(ctx context.Context, attendantID string, status RoomStatus) ([]*Room, error)
	CloseRoom(ctx context.Context, roomID string, pending bool, closedAt time.Time) error
	ResolveRoom(ctx context.Context, roomID string) error
	ReopenRoom(ctx context.Context, roomID, newAttendantID string) error

	// ReassignRoom transfers ownership in a single transaction, keyed on the
	// owner the caller observed. A mismatch means a concurrent transition won
	// and the call fails with ErrConflict.
	ReassignRoom(ctx context.Context, roomID string, expectedOwner *string, newAttendantID string) error

	// Pending-work query
	ListPendingRooms(ctx context.Context, attendantID string) ([]*PendingRoom, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetRoomMessages(ctx context.Context, roomID string, includeInternal bool, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}

// ChangeNotifier receives a table-keyed invalidation after every committed
// mutation. Implemented by the feed bridge; a nil notifier disables
// notifications.
type ChangeNotifier interface {
	Notify(table string)
}
