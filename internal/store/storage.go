package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// AuditEntry mirrors one applied edit into the 'edit_audit' table. The
// history sheet inside the workbook stays the audit store of record; the
// database copy exists so operators can query the trail without exporting
// the spreadsheet.
type AuditEntry struct {
	ID         int64     `db:"id" json:"id"`
	Week       string    `db:"week" json:"week"`
	Month      string    `db:"month" json:"month"`
	Management string    `db:"management" json:"management"`
	Analysis   string    `db:"analysis" json:"analysis"`
	OldValue   float64   `db:"old_value" json:"old_value"`
	NewValue   float64   `db:"new_value" json:"new_value"`
	Actor      string    `db:"actor" json:"actor"`
	EditedAt   time.Time `db:"edited_at" json:"edited_at"`
}

type Storage struct {
	Audit interface {
		InsertAuditEntry(ctx context.Context, entry *AuditEntry) error
		GetLatest(ctx context.Context, limit int) ([]AuditEntry, error)
	}
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		Audit: &AuditStore{db: db},
	}
}
