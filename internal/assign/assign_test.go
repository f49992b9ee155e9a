// ABOUTME: Tests for the assignment engine
// ABOUTME: Covers eligibility filtering and the least-loaded deterministic selection

package assign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminahq/livedesk/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

func intPtr(n int) *int { return &n }

func seedAttendant(t *testing.T, s *store.SQLiteStore, id string, status store.AttendantStatus, max *int, active int) {
	t.Helper()
	now := time.Now().UTC()
	att := &store.Attendant{
		ID:                  id,
		UserID:              "user-" + id,
		ManagerID:           "mgr-1",
		Status:              status,
		MaxConversations:    max,
		ActiveConversations: active,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, s.CreateAttendant(context.Background(), att))
}

func TestEligible_FiltersOfflineAndFull(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-online", store.AttendantOnline, intPtr(3), 1)
	seedAttendant(t, s, "att-away", store.AttendantAway, nil, 0)
	seedAttendant(t, s, "att-offline", store.AttendantOffline, nil, 0)
	seedAttendant(t, s, "att-full", store.AttendantOnline, intPtr(2), 2)

	eligible, err := e.Eligible(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, eligible, 2)

	ids := []string{eligible[0].ID, eligible[1].ID}
	assert.Contains(t, ids, "att-online")
	assert.Contains(t, ids, "att-away", "away attendants stay eligible")
}

func TestEligible_ExcludesCurrentOwner(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-1", store.AttendantOnline, nil, 0)
	seedAttendant(t, s, "att-2", store.AttendantOnline, nil, 0)

	eligible, err := e.Eligible(context.Background(), "att-1")
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "att-2", eligible[0].ID)
}

func TestEligible_EmptyPoolIsNotAnError(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-offline", store.AttendantOffline, nil, 0)

	eligible, err := e.Eligible(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestSelect_LeastLoadedFirst(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-busy", store.AttendantOnline, nil, 5)
	seedAttendant(t, s, "att-idle", store.AttendantOnline, nil, 1)

	chosen, err := e.Select(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "att-idle", chosen.ID)
}

func TestSelect_TieBreaksOnID(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-b", store.AttendantOnline, nil, 2)
	seedAttendant(t, s, "att-a", store.AttendantOnline, nil, 2)
	seedAttendant(t, s, "att-c", store.AttendantOnline, nil, 2)

	// Deterministic: same state, same answer, every time.
	for i := 0; i < 3; i++ {
		chosen, err := e.Select(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "att-a", chosen.ID)
	}
}

func TestSelect_NoneAvailable(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-offline", store.AttendantOffline, nil, 0)
	seedAttendant(t, s, "att-full", store.AttendantOnline, intPtr(1), 1)

	_, err := e.Select(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoneAvailable)
}

func TestSelect_ExcludeOnlyCandidate(t *testing.T) {
	e, s := newTestEngine(t)

	seedAttendant(t, s, "att-1", store.AttendantOnline, nil, 0)

	_, err := e.Select(context.Background(), "att-1")
	assert.ErrorIs(t, err, ErrNoneAvailable)
}
