// ABOUTME: Message persistence for rooms
// ABOUTME: Saves visitor/attendant messages and internal notes, retrieves transcripts

package store

import (
	"context"
	"fmt"
	"time"
)

// SaveMessage persists a message to a room. Internal messages are
// attendant-authored notes that never reach the visitor.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, room_id, sender_type, sender_id, content, is_internal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.RoomID,
		string(msg.SenderType),
		msg.SenderID,
		msg.Content,
		msg.Internal,
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("saving message to room %s: %w", msg.RoomID, ErrNotFound)
		}
		return fmt.Errorf("saving message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "room", msg.RoomID, "internal", msg.Internal)
	s.notify(TableMessages)
	return nil
}

// GetRoomMessages retrieves a room's messages in chronological order.
// includeInternal controls whether internal notes appear; limit <= 0 means
// no limit.
func (s *SQLiteStore) GetRoomMessages(ctx context.Context, roomID string, includeInternal bool, limit int) ([]*Message, error) {
	query := `
		SELECT id, room_id, sender_type, sender_id, content, is_internal, created_at
		FROM messages
		WHERE room_id = ?
	`
	args := []any{roomID}
	if !includeInternal {
		query += ` AND is_internal = 0`
	}
	// rowid breaks same-second ties in insertion order.
	query += ` ORDER BY created_at ASC, rowid ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var senderType, createdAtStr string
		err := rows.Scan(&msg.ID, &msg.RoomID, &senderType, &msg.SenderID, &msg.Content, &msg.Internal, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.SenderType = SenderType(senderType)
		msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}
