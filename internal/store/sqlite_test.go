// ABOUTME: Tests for SQLite store setup, attendants, and visitors
// ABOUTME: Covers schema creation, attendant CRUD/status, visitor tokens

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(n int) *int { return &n }

func seedAttendant(t *testing.T, s *SQLiteStore, id string, max *int) *Attendant {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	att := &Attendant{
		ID:               id,
		UserID:           "user-" + id,
		ManagerID:        "mgr-1",
		Status:           AttendantOnline,
		MaxConversations: max,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, s.CreateAttendant(context.Background(), att))
	return att
}

func seedVisitor(t *testing.T, s *SQLiteStore, name string) *Visitor {
	t.Helper()
	v := &Visitor{
		ID:          uuid.New().String(),
		DisplayName: name,
		Token:       uuid.New().String(),
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateVisitor(context.Background(), v))
	return v
}

// recordingNotifier captures change-feed keys for assertions.
type recordingNotifier struct {
	tables []string
}

func (n *recordingNotifier) Notify(table string) {
	n.tables = append(n.tables, table)
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "livedesk.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
}

func TestCreateAndGetAttendant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	att := seedAttendant(t, s, "att-1", intPtr(3))

	got, err := s.GetAttendant(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, att.ID, got.ID)
	assert.Equal(t, att.UserID, got.UserID)
	assert.Equal(t, att.ManagerID, got.ManagerID)
	assert.Equal(t, AttendantOnline, got.Status)
	require.NotNil(t, got.MaxConversations)
	assert.Equal(t, 3, *got.MaxConversations)
	assert.Equal(t, 0, got.ActiveConversations)
	assert.True(t, got.CreatedAt.Equal(att.CreatedAt))
}

func TestGetAttendant_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAttendant(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttendant_UnboundedCapacity(t *testing.T) {
	s := newTestStore(t)

	seedAttendant(t, s, "att-1", nil)

	got, err := s.GetAttendant(context.Background(), "att-1")
	require.NoError(t, err)
	assert.Nil(t, got.MaxConversations)
	assert.True(t, got.HasCapacity())
	assert.Equal(t, "∞", got.CapacityLabel())
}

func TestListAttendants_OrderedByID(t *testing.T) {
	s := newTestStore(t)

	seedAttendant(t, s, "att-c", nil)
	seedAttendant(t, s, "att-a", nil)
	seedAttendant(t, s, "att-b", nil)

	attendants, err := s.ListAttendants(context.Background())
	require.NoError(t, err)
	require.Len(t, attendants, 3)
	assert.Equal(t, "att-a", attendants[0].ID)
	assert.Equal(t, "att-b", attendants[1].ID)
	assert.Equal(t, "att-c", attendants[2].ID)
}

func TestSetAttendantStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAttendant(t, s, "att-1", nil)

	require.NoError(t, s.SetAttendantStatus(ctx, "att-1", AttendantAway))

	got, err := s.GetAttendant(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, AttendantAway, got.Status)
}

func TestSetAttendantStatus_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.SetAttendantStatus(context.Background(), "nonexistent", AttendantOnline)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetAttendantStatus_NotifiesAttendantsTable(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)

	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	require.NoError(t, s.SetAttendantStatus(context.Background(), "att-1", AttendantOffline))
	assert.Contains(t, notifier.tables, TableAttendants)
}

func TestCreateAndGetVisitor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := seedVisitor(t, s, "Ada")

	got, err := s.GetVisitor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Equal(t, v.Token, got.Token)

	byToken, err := s.GetVisitorByToken(ctx, v.Token)
	require.NoError(t, err)
	assert.Equal(t, v.ID, byToken.ID)
}

func TestCreateVisitor_DuplicateToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := seedVisitor(t, s, "Ada")

	dup := &Visitor{
		ID:          uuid.New().String(),
		DisplayName: "Impostor",
		Token:       v.Token,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.CreateVisitor(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateVisitor)
}

func TestGetVisitor_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetVisitor(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetVisitorByToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}
