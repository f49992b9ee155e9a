// ABOUTME: Assignment engine computing eligible attendants for new conversations
// ABOUTME: Manual selection is the baseline; Select offers a least-loaded automatic policy

package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/luminahq/livedesk/internal/store"
)

// ErrNoneAvailable is returned by Select when no attendant can take a
// conversation right now
var ErrNoneAvailable = errors.New("no attendant available")

// CandidateStore defines what the engine needs from storage
type CandidateStore interface {
	ListAttendants(ctx context.Context) ([]*store.Attendant, error)
}

// Engine computes which attendants can take a new conversation.
type Engine struct {
	store  CandidateStore
	logger *slog.Logger
}

// New creates an engine. Pass nil logger for default.
func New(s CandidateStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  s,
		logger: logger.With("component", "assign"),
	}
}

// Eligible returns the candidate pool for a new or transferred conversation:
// attendants who are online or away, have free capacity, and are not the
// excluded one (the current owner during a transfer). An empty pool is not an
// error; the operator UI renders it as an empty state. Order follows the
// registry's stable ID ordering.
func (e *Engine) Eligible(ctx context.Context, excludeID string) ([]*store.Attendant, error) {
	attendants, err := e.store.ListAttendants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing attendants: %w", err)
	}

	eligible := make([]*store.Attendant, 0, len(attendants))
	for _, att := range attendants {
		if att.ID == excludeID {
			continue
		}
		if att.Status == store.AttendantOffline {
			continue
		}
		if !att.HasCapacity() {
			continue
		}
		eligible = append(eligible, att)
	}

	e.logger.Debug("computed eligible pool", "candidates", len(eligible), "excluded", excludeID)
	return eligible, nil
}

// Select picks one attendant automatically: fewest active conversations
// first, attendant ID ascending on ties, so repeated calls over the same
// state are deterministic. Returns ErrNoneAvailable when the pool is empty.
func (e *Engine) Select(ctx context.Context, excludeID string) (*store.Attendant, error) {
	eligible, err := e.Eligible(ctx, excludeID)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrNoneAvailable
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].ActiveConversations != eligible[j].ActiveConversations {
			return eligible[i].ActiveConversations < eligible[j].ActiveConversations
		}
		return eligible[i].ID < eligible[j].ID
	})

	chosen := eligible[0]
	e.logger.Debug("selected attendant", "id", chosen.ID, "active", chosen.ActiveConversations)
	return chosen, nil
}
