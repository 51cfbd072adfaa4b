package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

func (d *DB) CreateThinker(ctx context.Context, create *store.Thinker) (*store.Thinker, error) {
	fields := []string{"conversation_id", "name", "bio", "positions", "style", "created_ts"}
	args := []any{create.ConversationID, create.Name, create.Bio, create.Positions, create.Style, create.CreatedTs}
	stmt := `INSERT INTO thinker (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create thinker: %w", err)
	}
	return create, nil
}

func (d *DB) ListThinkers(ctx context.Context, find *store.FindThinker) ([]*store.Thinker, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}
	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}

	query := `SELECT id, conversation_id, name, bio, positions, style, created_ts
		FROM thinker
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list thinkers: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Thinker, 0)
	for rows.Next() {
		t := &store.Thinker{}
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Name, &t.Bio, &t.Positions, &t.Style, &t.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan thinker: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate thinkers: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteThinkers(ctx context.Context, delete *store.DeleteThinker) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM thinker WHERE conversation_id = $1", delete.ConversationID); err != nil {
		return fmt.Errorf("failed to delete thinkers: %w", err)
	}
	return nil
}
