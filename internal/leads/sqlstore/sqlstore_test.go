package sqlstore

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/m3rciful/mebelbot/core/database"
	"github.com/m3rciful/mebelbot/internal/apperr"
	"github.com/m3rciful/mebelbot/internal/leads"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, database.Config{
		SQLitePath: filepath.Join(t.TempDir(), "leads.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	b, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBackendUpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	lead := leads.Lead{ID: "x1", Name: "Ivan", Status: leads.StatusNew, Priority: leads.PriorityNormal}
	if err := b.Save(ctx, lead); err != nil {
		t.Fatal(err)
	}
	lead.Status = leads.StatusInProgress
	lead.Notes = []leads.Note{{Text: "call after 18:00"}}
	if err := b.Save(ctx, lead); err != nil {
		t.Fatal(err)
	}
	got, err := b.Load(ctx, "x1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != leads.StatusInProgress || len(got.Notes) != 1 {
		t.Fatalf("upsert lost changes: %+v", got)
	}
	var status string
	if err := b.db.GetContext(ctx, &status, `SELECT status FROM leads WHERE id = 'x1'`); err != nil {
		t.Fatal(err)
	}
	if status != string(leads.StatusInProgress) {
		t.Fatalf("status column not updated: %s", status)
	}
}

func TestBackendIndex(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := b.PushID(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.RemoveIDs(ctx, "a", "c"); err != nil {
		t.Fatal(err)
	}
	ids, err := b.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("unexpected index %v", ids)
	}
	if err := b.Remove(ctx, "a"); !errors.Is(err, leads.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestStoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	s := leads.NewStore(newTestBackend(t))
	l, err := s.Create(ctx, leads.NewLead{Name: "Ivan", Phone: "+79990001111", Source: leads.SourceCalculator})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateStatus(ctx, l.ID, "not_a_status", "admin", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, err := s.UpdateStatus(ctx, l.ID, leads.StatusCallCompleted, "admin", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("unexpected actions %+v", got.Actions)
	}
	list, err := s.List(ctx, leads.Filter{Status: leads.StatusCallCompleted})
	if err != nil || len(list) != 1 || list[0].Source != leads.SourceCalculator {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(Migrations, MigrationsDir+"/*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected up and down migration, got %v", files)
	}
}
