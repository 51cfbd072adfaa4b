package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

func (d *DB) CreateResearchRecord(ctx context.Context, create *store.ResearchRecord) (*store.ResearchRecord, error) {
	fields := []string{"name", "status", "payload", "error_message", "created_ts", "updated_ts"}
	args := []any{create.Name, create.Status, create.Payload, create.ErrorMessage, create.CreatedTs, create.UpdatedTs}
	stmt := `INSERT INTO research_record (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create research record: %w", err)
	}
	return create, nil
}

func (d *DB) GetResearchRecord(ctx context.Context, name string) (*store.ResearchRecord, error) {
	r := &store.ResearchRecord{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, status, payload, error_message, created_ts, updated_ts
		FROM research_record WHERE name = $1`, name,
	).Scan(&r.ID, &r.Name, &r.Status, &r.Payload, &r.ErrorMessage, &r.CreatedTs, &r.UpdatedTs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get research record: %w", err)
	}
	return r, nil
}

func (d *DB) ListResearchRecords(ctx context.Context, find *store.FindResearchRecord) ([]*store.ResearchRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
	}
	if find.UpdatedBefore != nil {
		where, args = append(where, "updated_ts < "+placeholder(len(args)+1)), append(args, *find.UpdatedBefore)
	}

	query := `SELECT id, name, status, payload, error_message, created_ts, updated_ts
		FROM research_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY name ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list research records: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ResearchRecord, 0)
	for rows.Next() {
		r := &store.ResearchRecord{}
		if err := rows.Scan(&r.ID, &r.Name, &r.Status, &r.Payload, &r.ErrorMessage, &r.CreatedTs, &r.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan research record: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate research records: %w", err)
	}
	return list, nil
}

// SetResearchInProgress relies on the status guard in the WHERE clause as a
// compare-and-set: concurrent triggers for the same name race on the row and
// exactly one update takes effect.
func (d *DB) SetResearchInProgress(ctx context.Context, name string) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE research_record SET status = $1, error_message = '', updated_ts = $2
		WHERE name = $3 AND status != $1`,
		store.ResearchInProgress, time.Now().Unix(), name,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set research in progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (d *DB) CompleteResearch(ctx context.Context, name string, payload string) error {
	if _, err := d.db.ExecContext(ctx,
		`UPDATE research_record SET status = $1, payload = $2, error_message = '', updated_ts = $3 WHERE name = $4`,
		store.ResearchComplete, payload, time.Now().Unix(), name,
	); err != nil {
		return fmt.Errorf("failed to complete research: %w", err)
	}
	return nil
}

func (d *DB) FailResearch(ctx context.Context, name string, errorMessage string) error {
	if _, err := d.db.ExecContext(ctx,
		`UPDATE research_record SET status = $1, error_message = $2, updated_ts = $3 WHERE name = $4`,
		store.ResearchFailed, errorMessage, time.Now().Unix(), name,
	); err != nil {
		return fmt.Errorf("failed to mark research failed: %w", err)
	}
	return nil
}
