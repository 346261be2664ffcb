package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/mebelbot/internal/leads"
)

func TestBackendCopiesRecords(t *testing.T) {
	ctx := context.Background()
	b := New()
	in := leads.Lead{ID: "a", Name: "Ivan", Actions: []leads.Action{{Type: "called"}}}
	if err := b.Save(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.Actions[0].Type = "mutated"

	got, err := b.Load(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Actions[0].Type != "called" {
		t.Fatalf("stored record shares memory with caller: %+v", got.Actions)
	}
}

func TestBackendIndexOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
	for _, id := range []string{"a", "b", "c"} {
		if err := b.PushID(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.RemoveIDs(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	ids, _ := b.IDs(ctx)
	if len(ids) != 2 || ids[0] != "c" || ids[1] != "a" {
		t.Fatalf("unexpected index %v", ids)
	}
}

func TestBackendRemoveMissing(t *testing.T) {
	b := New()
	if err := b.Remove(context.Background(), "nope"); !errors.Is(err, leads.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, err := b.Load(context.Background(), "nope"); !errors.Is(err, leads.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
