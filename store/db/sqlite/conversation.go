package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `INSERT INTO conversation (uid, topic, owner_id, status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.Topic, create.OwnerID, create.Status, create.CreatedTs, create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "c.id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "c.uid = ?"), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "c.owner_id = ?"), append(args, *find.OwnerID)
	}
	if find.Status != nil {
		where, args = append(where, "c.status = ?"), append(args, *find.Status)
	}

	// LEFT JOIN + SUM returns conversations with their cost totals in one
	// query instead of N+1 per-conversation aggregations.
	query := `
		SELECT
			c.id, c.uid, c.topic, c.owner_id, c.status, c.created_ts, c.updated_ts,
			COALESCE(SUM(m.cost), 0) AS cost_total
		FROM conversation c
		LEFT JOIN message m ON m.conversation_id = c.id
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY c.id
		ORDER BY c.updated_ts DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Topic, &c.OwnerID, &c.Status, &c.CreatedTs, &c.UpdatedTs, &c.CostTotal); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if update.Topic != nil {
		set, args = append(set, "topic = ?"), append(args, *update.Topic)
	}
	if update.Status != nil {
		set, args = append(set, "status = ?"), append(args, *update.Status)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update for conversation %d", update.ID)
	}
	args = append(args, update.ID)

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	list, err := d.ListConversations(ctx, &store.FindConversation{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return list[0], nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	// Soft delete: the conversation row stays (status inactive), its
	// messages and participants are removed.
	if _, err := d.db.ExecContext(ctx, "UPDATE conversation SET status = ? WHERE id = ?", store.ConversationInactive, delete.ID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM message WHERE conversation_id = ?", delete.ID); err != nil {
		return fmt.Errorf("failed to delete conversation messages: %w", err)
	}
	return nil
}
