package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	stmt := `INSERT INTO message (uid, conversation_id, sender_type, sender_name, content, sequence, cost, bubble_group, bubble_index, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.ConversationID, create.SenderType, create.SenderName, create.Content,
		create.Sequence, create.Cost, create.BubbleGroup, create.BubbleIndex, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}
	if find.SenderName != nil {
		where, args = append(where, "sender_name = ?"), append(args, *find.SenderName)
	}

	query := `SELECT id, uid, conversation_id, sender_type, sender_name, content, sequence, cost, bubble_group, bubble_index, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY sequence ASC`
	if find.Limit != nil {
		// Most recent N, still returned ascending.
		query = `SELECT * FROM (` +
			strings.Replace(query, "ORDER BY sequence ASC", "ORDER BY sequence DESC", 1) +
			fmt.Sprintf(" LIMIT %d) ORDER BY sequence ASC", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.SenderType, &m.SenderName, &m.Content,
			&m.Sequence, &m.Cost, &m.BubbleGroup, &m.BubbleIndex, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteMessages(ctx context.Context, delete *store.DeleteMessage) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM message WHERE conversation_id = ?", delete.ConversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

func (d *DB) GetMaxMessageSequence(ctx context.Context, conversationID int32) (int64, error) {
	var max int64
	if err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM message WHERE conversation_id = ?", conversationID,
	).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max message sequence: %w", err)
	}
	return max, nil
}

func (d *DB) SumMessageCost(ctx context.Context, conversationID int32) (float64, error) {
	var sum float64
	if err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(cost), 0) FROM message WHERE conversation_id = ?", conversationID,
	).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum message cost: %w", err)
	}
	return sum, nil
}
