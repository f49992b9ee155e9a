// ABOUTME: Attendant registry service for onboarding and presence management
// ABOUTME: Wraps attendant storage with validation; status changes never touch rooms

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/luminahq/livedesk/internal/store"
)

// ErrInvalidStatus is returned when a status value is not a known presence state
var ErrInvalidStatus = errors.New("invalid attendant status")

// AttendantStore defines what the registry needs from storage
type AttendantStore interface {
	CreateAttendant(ctx context.Context, att *store.Attendant) error
	GetAttendant(ctx context.Context, id string) (*store.Attendant, error)
	ListAttendants(ctx context.Context) ([]*store.Attendant, error)
	SetAttendantStatus(ctx context.Context, id string, status store.AttendantStatus) error
}

// Registry manages attendant profiles and presence.
type Registry struct {
	store  AttendantStore
	logger *slog.Logger
}

// New creates a registry. Pass nil logger for default.
func New(s AttendantStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		logger: logger.With("component", "registry"),
	}
}

// Create onboards a new attendant profile. The profile starts offline with no
// active conversations; maxConversations nil means unbounded capacity.
func (r *Registry) Create(ctx context.Context, userID, managerID string, maxConversations *int) (*store.Attendant, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if maxConversations != nil && *maxConversations < 0 {
		return nil, fmt.Errorf("max_conversations must not be negative")
	}

	now := time.Now().UTC()
	att := &store.Attendant{
		ID:               uuid.New().String(),
		UserID:           userID,
		ManagerID:        managerID,
		Status:           store.AttendantOffline,
		MaxConversations: maxConversations,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.store.CreateAttendant(ctx, att); err != nil {
		return nil, fmt.Errorf("creating attendant: %w", err)
	}

	r.logger.Info("attendant created", "id", att.ID, "user_id", userID, "capacity", att.CapacityLabel())
	return att, nil
}

// List returns all attendant profiles with their live status and counters.
func (r *Registry) List(ctx context.Context) ([]*store.Attendant, error) {
	return r.store.ListAttendants(ctx)
}

// Get returns one attendant profile.
func (r *Registry) Get(ctx context.Context, id string) (*store.Attendant, error) {
	return r.store.GetAttendant(ctx, id)
}

// SetStatus updates an attendant's presence. A direct write: going offline
// leaves the attendant's open conversations where they are, so service
// degrades gracefully instead of cascading reassignments.
func (r *Registry) SetStatus(ctx context.Context, id string, status store.AttendantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := r.store.SetAttendantStatus(ctx, id, status); err != nil {
		return err
	}
	r.logger.Info("attendant status changed", "id", id, "status", status)
	return nil
}
