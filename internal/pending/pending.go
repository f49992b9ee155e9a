// ABOUTME: Pending-work view listing conversations closed pending follow-up
// ABOUTME: Query layer plus a live view that resyncs on change-feed events

package pending

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luminahq/livedesk/internal/feed"
	"github.com/luminahq/livedesk/internal/store"
)

// previewRuneLimit caps the message preview shown in the pending list.
const previewRuneLimit = 60

// resyncTimeout bounds one live-view refresh against the store.
const resyncTimeout = 10 * time.Second

// Summary is one row of an attendant's pending-work list.
type Summary struct {
	RoomID      string    `json:"room_id"`
	VisitorID   string    `json:"visitor_id"`
	VisitorName string    `json:"visitor_name"`
	Preview     string    `json:"preview"`
	ClosedAt    time.Time `json:"closed_at"`
}

// PendingStore defines what the view needs from storage
type PendingStore interface {
	ListPendingRooms(ctx context.Context, attendantID string) ([]*store.PendingRoom, error)
}

// View answers "what did I close that still needs follow-up" for an attendant.
type View struct {
	store  PendingStore
	logger *slog.Logger
}

// New creates a view. Pass nil logger for default.
func New(s PendingStore, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		store:  s,
		logger: logger.With("component", "pending"),
	}
}

// ForAttendant returns the attendant's pending-resolution conversations,
// most recently closed first, each with the visitor's name and a preview of
// the latest visitor message.
func (v *View) ForAttendant(ctx context.Context, attendantID string) ([]Summary, error) {
	rooms, err := v.store.ListPendingRooms(ctx, attendantID)
	if err != nil {
		return nil, fmt.Errorf("listing pending rooms: %w", err)
	}

	summaries := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, Summary{
			RoomID:      r.RoomID,
			VisitorID:   r.VisitorID,
			VisitorName: r.VisitorName,
			Preview:     truncate(r.LastMessage, previewRuneLimit),
			ClosedAt:    r.ClosedAt,
		})
	}
	return summaries, nil
}

// truncate cuts s to at most limit runes, never splitting a character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// LiveView keeps an attendant's pending list current. It subscribes to room
// and message changes and refetches the full list on every event; the
// refetch-everything model makes delivery idempotent, so coalesced or
// duplicate events converge on the same snapshot.
type LiveView struct {
	view        *View
	attendantID string
	logger      *slog.Logger

	mu       sync.RWMutex
	snapshot []Summary

	subs     []*feed.Subscription
	onUpdate func([]Summary)
}

// NewLiveView builds the initial snapshot and starts following changes.
// onUpdate, if non-nil, runs after every resync with the fresh snapshot;
// it must not call Close.
func NewLiveView(ctx context.Context, view *View, bridge *feed.Bridge, attendantID string, onUpdate func([]Summary)) (*LiveView, error) {
	lv := &LiveView{
		view:        view,
		attendantID: attendantID,
		logger:      view.logger.With("attendant", attendantID),
		onUpdate:    onUpdate,
	}

	if err := lv.resync(ctx); err != nil {
		return nil, err
	}

	// Closing a room changes rooms; the preview comes from messages. Either
	// table changing can alter the list.
	lv.subs = append(lv.subs,
		bridge.Subscribe(store.TableRooms, lv.onChange),
		bridge.Subscribe(store.TableMessages, lv.onChange),
	)

	return lv, nil
}

// Snapshot returns the most recent pending list.
func (lv *LiveView) Snapshot() []Summary {
	lv.mu.RLock()
	defer lv.mu.RUnlock()
	out := make([]Summary, len(lv.snapshot))
	copy(out, lv.snapshot)
	return out
}

// Close stops following changes. No onUpdate call happens after Close returns.
func (lv *LiveView) Close() {
	for _, sub := range lv.subs {
		sub.Cancel()
	}
}

func (lv *LiveView) onChange() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	if err := lv.resync(ctx); err != nil {
		// Keep the stale snapshot; the next change event retries.
		lv.logger.Warn("pending view resync failed", "error", err)
		return
	}
	if lv.onUpdate != nil {
		lv.onUpdate(lv.Snapshot())
	}
}

func (lv *LiveView) resync(ctx context.Context) error {
	summaries, err := lv.view.ForAttendant(ctx, lv.attendantID)
	if err != nil {
		return err
	}
	lv.mu.Lock()
	lv.snapshot = summaries
	lv.mu.Unlock()
	return nil
}
