// ABOUTME: Tests for the attendant registry service
// ABOUTME: Covers onboarding defaults, status changes, and graceful offline behavior

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminahq/livedesk/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

func intPtr(n int) *int { return &n }

func TestCreate_Defaults(t *testing.T) {
	r, _ := newTestRegistry(t)

	att, err := r.Create(context.Background(), "user-1", "mgr-1", intPtr(4))
	require.NoError(t, err)
	assert.NotEmpty(t, att.ID)
	assert.Equal(t, store.AttendantOffline, att.Status)
	assert.Equal(t, 0, att.ActiveConversations)
	require.NotNil(t, att.MaxConversations)
	assert.Equal(t, 4, *att.MaxConversations)

	got, err := r.Get(context.Background(), att.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "mgr-1", got.ManagerID)
}

func TestCreate_UnboundedCapacity(t *testing.T) {
	r, _ := newTestRegistry(t)

	att, err := r.Create(context.Background(), "user-1", "mgr-1", nil)
	require.NoError(t, err)
	assert.Nil(t, att.MaxConversations)
	assert.Equal(t, "∞", att.CapacityLabel())
}

func TestCreate_Validation(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Create(context.Background(), "", "mgr-1", nil)
	assert.Error(t, err)

	_, err = r.Create(context.Background(), "user-1", "mgr-1", intPtr(-1))
	assert.Error(t, err)
}

func TestSetStatus(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	att, err := r.Create(ctx, "user-1", "mgr-1", nil)
	require.NoError(t, err)

	require.NoError(t, r.SetStatus(ctx, att.ID, store.AttendantOnline))

	got, err := r.Get(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AttendantOnline, got.Status)
}

func TestSetStatus_Invalid(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.SetStatus(context.Background(), "whatever", store.AttendantStatus("busy"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetStatus_NotFound(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.SetStatus(context.Background(), "nonexistent", store.AttendantOnline)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetStatus_OfflineKeepsOpenRooms(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	att, err := r.Create(ctx, "user-1", "mgr-1", nil)
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(ctx, att.ID, store.AttendantOnline))

	v := &store.Visitor{ID: "v-1", DisplayName: "Ada", Token: "tok-1"}
	require.NoError(t, s.CreateVisitor(ctx, v))
	room := &store.Room{
		ID:          "room-1",
		VisitorID:   v.ID,
		AttendantID: &att.ID,
		Status:      store.RoomOpen,
		Resolution:  store.ResolutionNone,
	}
	require.NoError(t, s.CreateRoom(ctx, room))

	require.NoError(t, r.SetStatus(ctx, att.ID, store.AttendantOffline))

	// The room keeps its owner and the counter stands.
	got, err := s.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got.AttendantID)
	assert.Equal(t, att.ID, *got.AttendantID)

	profile, err := r.Get(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.ActiveConversations)
}

func TestList(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "user-1", "mgr-1", nil)
	require.NoError(t, err)
	_, err = r.Create(ctx, "user-2", "mgr-1", intPtr(2))
	require.NoError(t, err)

	attendants, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, attendants, 2)
}
