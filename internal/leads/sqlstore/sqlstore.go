// Package sqlstore keeps leads in a SQL database, one row per lead holding
// the JSON document next to the columns used for filtering.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/mebelbot/core/database"
	"github.com/m3rciful/mebelbot/internal/leads"
)

// Migrations holds the Postgres schema for golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the files.
const MigrationsDir = "migrations"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leads (
    id         TEXT PRIMARY KEY,
    status     TEXT    NOT NULL,
    priority   TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    data       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_status_idx ON leads (status);
CREATE TABLE IF NOT EXISTS lead_index (
    position INTEGER PRIMARY KEY AUTOINCREMENT,
    id       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS lead_index_id_idx ON lead_index (id);
`

type row struct {
	ID        string `db:"id"`
	Status    string `db:"status"`
	Priority  string `db:"priority"`
	CreatedAt int64  `db:"created_at"`
	Data      string `db:"data"`
}

// Backend implements leads.Backend over sqlx.
type Backend struct {
	db *sqlx.DB
}

// New returns a Backend over db. For SQLite the schema is created in place;
// Postgres relies on Migrations having been applied.
func New(ctx context.Context, db *sqlx.DB) (*Backend, error) {
	if db.DriverName() == database.DriverSQLite {
		if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Load(ctx context.Context, id string) (leads.Lead, error) {
	var r row
	err := b.db.GetContext(ctx, &r, b.db.Rebind(`SELECT id, status, priority, created_at, data FROM leads WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return leads.Lead{}, leads.ErrNotExist
	}
	if err != nil {
		return leads.Lead{}, fmt.Errorf("select lead: %w", err)
	}
	var l leads.Lead
	if err := json.Unmarshal([]byte(r.Data), &l); err != nil {
		return leads.Lead{}, fmt.Errorf("decode lead %s: %w", id, err)
	}
	return l, nil
}

func (b *Backend) Save(ctx context.Context, lead leads.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	r := row{
		ID:        lead.ID,
		Status:    string(lead.Status),
		Priority:  string(lead.Priority),
		CreatedAt: lead.CreatedAt.UnixNano(),
		Data:      string(data),
	}
	_, err = b.db.NamedExecContext(ctx, `
INSERT INTO leads (id, status, priority, created_at, data)
VALUES (:id, :status, :priority, :created_at, :data)
ON CONFLICT (id) DO UPDATE SET status = excluded.status, priority = excluded.priority, data = excluded.data`, r)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, b.db.Rebind(`DELETE FROM leads WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if n == 0 {
		return leads.ErrNotExist
	}
	return nil
}

func (b *Backend) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := b.db.SelectContext(ctx, &ids, `SELECT id FROM lead_index ORDER BY position DESC`); err != nil {
		return nil, fmt.Errorf("select index: %w", err)
	}
	return ids, nil
}

func (b *Backend) PushID(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, b.db.Rebind(`INSERT INTO lead_index (id) VALUES (?)`), id); err != nil {
		return fmt.Errorf("insert index: %w", err)
	}
	return nil
}

func (b *Backend) RemoveIDs(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM lead_index WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build index delete: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, b.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

var _ leads.Backend = (*Backend)(nil)
