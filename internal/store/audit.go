package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type AuditStore struct {
	db *sqlx.DB
}

func (a *AuditStore) InsertAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `INSERT INTO edit_audit (
		week,
		month,
		management,
		analysis,
		old_value,
		new_value,
		actor,
		edited_at
	) VALUES (
		:week,
		:month,
		:management,
		:analysis,
		:old_value,
		:new_value,
		:actor,
		:edited_at
	) RETURNING id`

	rows, err := a.db.NamedQueryContext(ctx, query, entry)
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&entry.ID); err != nil {
			return err
		}
	}
	return nil
}

func (a *AuditStore) GetLatest(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `SELECT id, week, month, management, analysis, old_value, new_value, actor, edited_at
		FROM edit_audit
		ORDER BY edited_at DESC
		LIMIT $1`

	entries := []AuditEntry{}
	if err := a.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, err
	}
	return entries, nil
}
