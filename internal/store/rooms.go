// ABOUTME: Room persistence and the transactional lifecycle transitions
// ABOUTME: Every transition updates the room row and attendant counters in one commit

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateRoom inserts a new room. If the room is open with an attendant
// assigned, the attendant's active counter is incremented in the same
// transaction, guarded by the capacity ceiling.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *Room) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO rooms (id, visitor_id, attendant_id, status, resolution, closed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		room.ID,
		room.VisitorID,
		room.AttendantID,
		string(room.Status),
		string(room.Resolution),
		nullTime(room.ClosedAt),
		room.CreatedAt.UTC().Format(time.RFC3339),
		room.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}

	if room.Status == RoomOpen && room.AttendantID != nil {
		if err := s.incrementActive(ctx, tx, *room.AttendantID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing room creation: %w", err)
	}

	s.logger.Debug("created room", "id", room.ID, "visitor", room.VisitorID)
	s.notify(TableRooms)
	s.notify(TableAttendants)
	return nil
}

// GetRoom retrieves a room by ID.
// Returns ErrNotFound if the room doesn't exist.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	query := `
		SELECT id, visitor_id, attendant_id, status, resolution, closed_at, created_at, updated_at
		FROM rooms
		WHERE id = ?
	`
	return scanRoom(s.db.QueryRowContext(ctx, query, id))
}

// ListRoomsByAttendant retrieves rooms owned by an attendant. An empty status
// returns rooms in any state.
func (s *SQLiteStore) ListRoomsByAttendant(ctx context.Context, attendantID string, status RoomStatus) ([]*Room, error) {
	query := `
		SELECT id, visitor_id, attendant_id, status, resolution, closed_at, created_at, updated_at
		FROM rooms
		WHERE attendant_id = ?
	`
	args := []any{attendantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room rows: %w", err)
	}

	return rooms, nil
}

// CloseRoom transitions an open room to closed. pending marks it for
// follow-up (resolution 'pending'); otherwise it closes fully resolved.
// The owner's active counter is decremented in the same transaction.
func (s *SQLiteStore) CloseRoom(ctx context.Context, roomID string, pending bool, closedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	room, err := getRoomTx(ctx, tx, roomID)
	if err != nil {
		return err
	}
	if room.Status != RoomOpen {
		return ErrConflict
	}

	resolution := ResolutionResolved
	if pending {
		resolution = ResolutionPending
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE rooms
		SET status = 'closed', resolution = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'open'
	`,
		string(resolution),
		closedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("closing room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConflict
	}

	if room.AttendantID != nil {
		if err := s.decrementActive(ctx, tx, *room.AttendantID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing close: %w", err)
	}

	s.logger.Debug("closed room", "id", roomID, "resolution", resolution)
	s.notify(TableRooms)
	s.notify(TableAttendants)
	return nil
}

// ResolveRoom transitions a pending-resolution room to resolved.
// Returns ErrNotFound if the room doesn't exist, ErrConflict if it is not
// awaiting resolution.
func (s *SQLiteStore) ResolveRoom(ctx context.Context, roomID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET resolution = 'resolved', updated_at = ?
		WHERE id = ? AND status = 'closed' AND resolution = 'pending'
	`,
		time.Now().UTC().Format(time.RFC3339),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("resolving room: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetRoom(ctx, roomID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}

	s.logger.Debug("resolved room", "id", roomID)
	s.notify(TableRooms)
	return nil
}

// ReopenRoom transitions a pending-resolution room back to open. The owner is
// unchanged unless newAttendantID is non-empty. Whoever ends up owning the
// room must have free capacity.
func (s *SQLiteStore) ReopenRoom(ctx context.Context, roomID, newAttendantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	room, err := getRoomTx(ctx, tx, roomID)
	if err != nil {
		return err
	}
	if !room.PendingResolution() {
		return ErrConflict
	}

	owner := newAttendantID
	if owner == "" {
		if room.AttendantID == nil {
			return fmt.Errorf("room %s has no attendant to reopen under", roomID)
		}
		owner = *room.AttendantID
	}

	if err := s.incrementActive(ctx, tx, owner); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE rooms
		SET status = 'open', resolution = 'none', closed_at = NULL, attendant_id = ?, updated_at = ?
		WHERE id = ? AND status = 'closed' AND resolution = 'pending'
	`,
		owner,
		time.Now().UTC().Format(time.RFC3339),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("reopening room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reopen: %w", err)
	}

	s.logger.Debug("reopened room", "id", roomID, "attendant", owner)
	s.notify(TableRooms)
	s.notify(TableAttendants)
	return nil
}

// ReassignRoom transfers a room to another attendant, landing it open.
// expectedOwner is the owner the caller observed: if the room's owner has
// changed since, the call fails with ErrConflict and nothing moves.
// The new owner's counter increments (capacity-guarded); for an open room
// the old owner's counter decrements in the same commit. A pending-resolution
// room reopens as part of the transfer, so its old owner, whose slot was
// released at close, keeps an unchanged counter.
func (s *SQLiteStore) ReassignRoom(ctx context.Context, roomID string, expectedOwner *string, newAttendantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	room, err := getRoomTx(ctx, tx, roomID)
	if err != nil {
		return err
	}
	if !room.Open() && !room.PendingResolution() {
		return ErrConflict
	}
	if !sameOwner(room.AttendantID, expectedOwner) {
		return ErrConflict
	}
	if room.Open() && room.AttendantID != nil && *room.AttendantID == newAttendantID {
		// Already open under the target; nothing to move.
		return nil
	}

	if room.Open() && room.AttendantID != nil {
		if err := s.decrementActive(ctx, tx, *room.AttendantID); err != nil {
			return err
		}
	}
	if err := s.incrementActive(ctx, tx, newAttendantID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE rooms
		SET attendant_id = ?, status = 'open', resolution = 'none', closed_at = NULL, updated_at = ?
		WHERE id = ?
	`,
		newAttendantID,
		time.Now().UTC().Format(time.RFC3339),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("reassigning room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reassignment: %w", err)
	}

	s.logger.Debug("reassigned room", "id", roomID, "attendant", newAttendantID)
	s.notify(TableRooms)
	s.notify(TableAttendants)
	return nil
}

// ListPendingRooms returns the attendant's pending-resolution rooms joined
// with the visitor name and the most recent visitor-authored non-internal
// message, ordered by most recently closed first.
func (s *SQLiteStore) ListPendingRooms(ctx context.Context, attendantID string) ([]*PendingRoom, error) {
	query := `
		SELECT r.id, r.visitor_id, v.display_name, r.closed_at,
			COALESCE((
				SELECT m.content FROM messages m
				WHERE m.room_id = r.id AND m.sender_type = 'visitor' AND m.is_internal = 0
				ORDER BY m.created_at DESC, m.rowid DESC
				LIMIT 1
			), '')
		FROM rooms r
		JOIN visitors v ON v.id = r.visitor_id
		WHERE r.attendant_id = ? AND r.status = 'closed' AND r.resolution = 'pending'
		ORDER BY r.closed_at DESC, r.rowid DESC
	`

	rows, err := s.db.QueryContext(ctx, query, attendantID)
	if err != nil {
		return nil, fmt.Errorf("querying pending rooms: %w", err)
	}
	defer rows.Close()

	var pending []*PendingRoom
	for rows.Next() {
		var p PendingRoom
		var closedAtStr string
		if err := rows.Scan(&p.RoomID, &p.VisitorID, &p.VisitorName, &closedAtStr, &p.LastMessage); err != nil {
			return nil, fmt.Errorf("scanning pending room: %w", err)
		}
		p.ClosedAt, err = time.Parse(time.RFC3339, closedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at: %w", err)
		}
		pending = append(pending, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending rows: %w", err)
	}

	return pending, nil
}

// incrementActive bumps an attendant's active counter, guarded by the
// capacity ceiling. Returns ErrNotFound if the attendant doesn't exist,
// ErrCapacityExceeded if the ceiling is reached.
func (s *SQLiteStore) incrementActive(ctx context.Context, tx *sql.Tx, attendantID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE attendant_profiles
		SET active_conversations = active_conversations + 1, updated_at = ?
		WHERE id = ? AND (max_conversations IS NULL OR active_conversations < max_conversations)
	`,
		time.Now().UTC().Format(time.RFC3339),
		attendantID,
	)
	if err != nil {
		return fmt.Errorf("incrementing active count: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		if err := attendantExists(ctx, tx, attendantID); err != nil {
			return err
		}
		return ErrCapacityExceeded
	}
	return nil
}

// decrementActive lowers an attendant's active counter. A zero counter here
// means the cached count drifted from reality, which the transition
// invariants are supposed to prevent.
func (s *SQLiteStore) decrementActive(ctx context.Context, tx *sql.Tx, attendantID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE attendant_profiles
		SET active_conversations = active_conversations - 1, updated_at = ?
		WHERE id = ? AND active_conversations > 0
	`,
		time.Now().UTC().Format(time.RFC3339),
		attendantID,
	)
	if err != nil {
		return fmt.Errorf("decrementing active count: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		if err := attendantExists(ctx, tx, attendantID); err != nil {
			return err
		}
		return fmt.Errorf("active count for attendant %s already zero", attendantID)
	}
	return nil
}

// attendantExists returns ErrNotFound if the attendant is missing.
func attendantExists(ctx context.Context, tx *sql.Tx, attendantID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM attendant_profiles WHERE id = ?`, attendantID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking attendant: %w", err)
	}
	return nil
}

// getRoomTx reads a room inside a transaction.
func getRoomTx(ctx context.Context, tx *sql.Tx, id string) (*Room, error) {
	query := `
		SELECT id, visitor_id, attendant_id, status, resolution, closed_at, created_at, updated_at
		FROM rooms
		WHERE id = ?
	`
	return scanRoom(tx.QueryRowContext(ctx, query, id))
}

func scanRoom(row rowScanner) (*Room, error) {
	var room Room
	var attendantID sql.NullString
	var status, resolution string
	var closedAtStr sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&room.ID,
		&room.VisitorID,
		&attendantID,
		&status,
		&resolution,
		&closedAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning room: %w", err)
	}

	room.Status = RoomStatus(status)
	room.Resolution = Resolution(resolution)
	if attendantID.Valid {
		room.AttendantID = &attendantID.String
	}
	if closedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, closedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at: %w", err)
		}
		room.ClosedAt = &t
	}

	room.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	room.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &room, nil
}

// sameOwner compares two nullable owner IDs.
func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// nullTime formats a nullable timestamp for storage.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
