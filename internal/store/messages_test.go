// ABOUTME: Tests for message persistence and transcript retrieval
// ABOUTME: Covers ordering, internal-note filtering, limits, and FK enforcement

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveTestMessage(t *testing.T, s *SQLiteStore, roomID string, sender SenderType, senderID, content string, internal bool, at time.Time) *Message {
	t.Helper()
	msg := &Message{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderType: sender,
		SenderID:   senderID,
		Content:    content,
		Internal:   internal,
		CreatedAt:  at.UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveMessage(context.Background(), msg))
	return msg
}

func TestSaveAndGetRoomMessages(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)
	v := seedVisitor(t, s, "Ada")
	room := seedOpenRoom(t, s, v.ID, "att-1")

	base := time.Now().Add(-time.Hour)
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "hello", false, base)
	saveTestMessage(t, s, room.ID, SenderAttendant, "att-1", "hi, how can I help?", false, base.Add(time.Minute))
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "my order is late", false, base.Add(2*time.Minute))

	messages, err := s.GetRoomMessages(context.Background(), room.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, SenderAttendant, messages[1].SenderType)
	assert.Equal(t, "my order is late", messages[2].Content)
}

func TestGetRoomMessages_ExcludesInternal(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)
	v := seedVisitor(t, s, "Ada")
	room := seedOpenRoom(t, s, v.ID, "att-1")

	base := time.Now().Add(-time.Hour)
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "hello", false, base)
	saveTestMessage(t, s, room.ID, SenderAttendant, "att-1", "customer sounds upset", true, base.Add(time.Minute))

	visible, err := s.GetRoomMessages(context.Background(), room.ID, false, 0)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "hello", visible[0].Content)

	all, err := s.GetRoomMessages(context.Background(), room.ID, true, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetRoomMessages_Limit(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)
	v := seedVisitor(t, s, "Ada")
	room := seedOpenRoom(t, s, v.ID, "att-1")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "msg", false, base.Add(time.Duration(i)*time.Minute))
	}

	messages, err := s.GetRoomMessages(context.Background(), room.ID, true, 2)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestSaveMessage_UnknownRoom(t *testing.T) {
	s := newTestStore(t)

	msg := &Message{
		ID:         uuid.New().String(),
		RoomID:     "nonexistent",
		SenderType: SenderVisitor,
		SenderID:   "v-1",
		Content:    "hello?",
		CreatedAt:  time.Now().UTC(),
	}
	err := s.SaveMessage(context.Background(), msg)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveMessage_NotifiesMessagesTable(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)
	v := seedVisitor(t, s, "Ada")
	room := seedOpenRoom(t, s, v.ID, "att-1")

	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "hello", false, time.Now())
	assert.Contains(t, notifier.tables, TableMessages)
}

func TestGetRoomMessages_SameSecondKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)
	v := seedVisitor(t, s, "Ada")
	room := seedOpenRoom(t, s, v.ID, "att-1")

	// Identical timestamps: the transcript must still read in insertion order.
	at := time.Now().Add(-time.Hour)
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "first", false, at)
	saveTestMessage(t, s, room.ID, SenderAttendant, "att-1", "second", false, at)
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "third", false, at)

	messages, err := s.GetRoomMessages(context.Background(), room.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestListPendingRooms_SameSecondPreviewPicksLatest(t *testing.T) {
	s := newTestStore(t)
	seedAttendant(t, s, "att-1", nil)
	v := seedVisitor(t, s, "Ada")
	room := seedOpenRoom(t, s, v.ID, "att-1")

	at := time.Now().Add(-time.Hour)
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "older", false, at)
	saveTestMessage(t, s, room.ID, SenderVisitor, v.ID, "newer", false, at)
	require.NoError(t, s.CloseRoom(context.Background(), room.ID, true, time.Now().UTC()))

	pending, err := s.ListPendingRooms(context.Background(), "att-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "newer", pending[0].LastMessage)
}
