// ABOUTME: Tests for the pending-work view and its live auto-resyncing variant
// ABOUTME: Covers preview truncation, ordering, and change-feed driven updates

package pending

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminahq/livedesk/internal/feed"
	"github.com/luminahq/livedesk/internal/store"
)

func newTestView(t *testing.T) (*View, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

func seedAttendant(t *testing.T, s *store.SQLiteStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.CreateAttendant(context.Background(), &store.Attendant{
		ID:        id,
		UserID:    "user-" + id,
		ManagerID: "mgr-1",
		Status:    store.AttendantOnline,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func seedVisitor(t *testing.T, s *store.SQLiteStore, name string) *store.Visitor {
	t.Helper()
	v := &store.Visitor{
		ID:          uuid.New().String(),
		DisplayName: name,
		Token:       uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.CreateVisitor(context.Background(), v))
	return v
}

func seedPendingRoom(t *testing.T, s *store.SQLiteStore, visitorID, attendantID, lastMessage string, closedAt time.Time) string {
	t.Helper()
	ctx := context.Background()
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
	require.NoError(t, s.CreateRoom(ctx, room))
	if lastMessage != "" {
		require.NoError(t, s.SaveMessage(ctx, &store.Message{
			ID:         uuid.New().String(),
			RoomID:     room.ID,
			SenderType: store.SenderVisitor,
			SenderID:   visitorID,
			Content:    lastMessage,
			CreatedAt:  now,
		}))
	}
	require.NoError(t, s.CloseRoom(ctx, room.ID, true, closedAt))
	return room.ID
}

func TestForAttendant_OrderAndPreview(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")
	ada := seedVisitor(t, s, "Ada")
	brin := seedVisitor(t, s, "Brin")

	older := seedPendingRoom(t, s, ada.ID, "att-1", "refund still missing", time.Now().Add(-2*time.Hour).UTC())
	newer := seedPendingRoom(t, s, brin.ID, "att-1", "cannot log in", time.Now().Add(-5*time.Minute).UTC())

	summaries, err := view.ForAttendant(context.Background(), "att-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, newer, summaries[0].RoomID)
	assert.Equal(t, "Brin", summaries[0].VisitorName)
	assert.Equal(t, "cannot log in", summaries[0].Preview)
	assert.Equal(t, older, summaries[1].RoomID)
}

func TestForAttendant_TruncatesPreview(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")
	v := seedVisitor(t, s, "Ada")

	long := strings.Repeat("a", 80)
	seedPendingRoom(t, s, v.ID, "att-1", long, time.Now().UTC())

	summaries, err := view.ForAttendant(context.Background(), "att-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, strings.Repeat("a", 60), summaries[0].Preview)
}

func TestForAttendant_TruncationIsRuneSafe(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")
	v := seedVisitor(t, s, "Ada")

	// 70 multibyte runes must cut at 60 runes, not mid-character.
	long := strings.Repeat("é", 70)
	seedPendingRoom(t, s, v.ID, "att-1", long, time.Now().UTC())

	summaries, err := view.ForAttendant(context.Background(), "att-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, strings.Repeat("é", 60), summaries[0].Preview)
}

func TestForAttendant_Empty(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")

	summaries, err := view.ForAttendant(context.Background(), "att-1")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestLiveView_ResyncsOnRoomChange(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")
	v := seedVisitor(t, s, "Ada")

	bridge := feed.NewBridge(nil)
	defer bridge.Close()
	s.SetNotifier(bridge)

	lv, err := NewLiveView(context.Background(), view, bridge, "att-1", nil)
	require.NoError(t, err)
	defer lv.Close()
	assert.Empty(t, lv.Snapshot())

	roomID := seedPendingRoom(t, s, v.ID, "att-1", "help", time.Now().UTC())

	require.Eventually(t, func() bool {
		snap := lv.Snapshot()
		return len(snap) == 1 && snap[0].RoomID == roomID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveView_CloseStopsUpdates(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")
	v := seedVisitor(t, s, "Ada")

	bridge := feed.NewBridge(nil)
	defer bridge.Close()
	s.SetNotifier(bridge)

	lv, err := NewLiveView(context.Background(), view, bridge, "att-1", nil)
	require.NoError(t, err)
	lv.Close()

	seedPendingRoom(t, s, v.ID, "att-1", "help", time.Now().UTC())
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, lv.Snapshot(), "closed view must not resync")
}

func TestLiveView_OnUpdateCallback(t *testing.T) {
	view, s := newTestView(t)
	seedAttendant(t, s, "att-1")
	v := seedVisitor(t, s, "Ada")

	bridge := feed.NewBridge(nil)
	defer bridge.Close()
	s.SetNotifier(bridge)

	updates := make(chan []Summary, 16)
	lv, err := NewLiveView(context.Background(), view, bridge, "att-1", func(snap []Summary) {
		updates <- snap
	})
	require.NoError(t, err)
	defer lv.Close()

	roomID := seedPendingRoom(t, s, v.ID, "att-1", "help", time.Now().UTC())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if len(snap) == 1 && snap[0].RoomID == roomID {
				return
			}
		case <-deadline:
			t.Fatal("onUpdate never delivered the new pending room")
		}
	}
}
