package leads_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/mebelbot/internal/apperr"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leads/kvstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, backend leads.Backend) (*leads.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	seq := 0
	store := leads.NewStore(backend,
		leads.WithClock(clock.Now),
		leads.WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("lead-%03d", seq), nil
		}),
	)
	return store, clock
}

func mustCreate(t *testing.T, s *leads.Store, in leads.NewLead) leads.Lead {
	t.Helper()
	l, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return l
}

func TestCreateFillsDefaults(t *testing.T) {
	s, _ := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "  Ivan ", Phone: "+79990001111"})

	if l.ID == "" || l.Name != "Ivan" {
		t.Fatalf("unexpected lead %+v", l)
	}
	if l.Status != leads.StatusNew || l.Source != leads.SourceWebsiteForm || l.Priority != leads.PriorityNormal {
		t.Fatalf("defaults not applied: %+v", l)
	}
	if l.Actions == nil || l.Notes == nil || len(l.Actions) != 0 || len(l.Notes) != 0 {
		t.Fatalf("expected empty logs, got %+v %+v", l.Actions, l.Notes)
	}
	if !l.CreatedAt.Equal(l.UpdatedAt) {
		t.Fatalf("timestamps differ: %v %v", l.CreatedAt, l.UpdatedAt)
	}

	got, err := s.Get(context.Background(), l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Ivan" {
		t.Fatalf("get returned %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestStore(t, kvstore.New())
	cases := []leads.NewLead{
		{Name: "   "},
		{Name: "Ivan", Source: "fax"},
		{Name: "Ivan", Priority: "urgent"},
	}
	for _, in := range cases {
		if _, err := s.Create(context.Background(), in); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%+v: expected validation error, got %v", in, err)
		}
	}
}

func TestListFiltersAndSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, kvstore.New())
	a := mustCreate(t, s, leads.NewLead{Name: "A"})
	clock.Advance(time.Minute)
	b := mustCreate(t, s, leads.NewLead{Name: "B", Priority: leads.PriorityHigh})
	clock.Advance(time.Minute)
	c := mustCreate(t, s, leads.NewLead{Name: "C"})
	if _, err := s.UpdateStatus(ctx, b.ID, leads.StatusInProgress, "admin", ""); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, leads.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != c.ID || all[1].ID != b.ID || all[2].ID != a.ID {
		t.Fatalf("unexpected order %v", ids(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("not newest first at %d", i)
		}
	}

	newOnly, _ := s.List(ctx, leads.Filter{Status: leads.StatusNew})
	if len(newOnly) != 2 {
		t.Fatalf("expected 2 new leads, got %v", ids(newOnly))
	}
	for _, l := range newOnly {
		if l.Status != leads.StatusNew {
			t.Fatalf("filter leaked %s", l.Status)
		}
	}

	high, _ := s.List(ctx, leads.Filter{Status: leads.StatusInProgress, Priority: leads.PriorityHigh})
	if len(high) != 1 || high[0].ID != b.ID {
		t.Fatalf("unexpected conjunction result %v", ids(high))
	}
}

func TestListSkipsDanglingIDs(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.New()
	s, _ := newTestStore(t, backend)
	l := mustCreate(t, s, leads.NewLead{Name: "A"})
	if err := backend.PushID(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}
	got, err := s.List(ctx, leads.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != l.ID {
		t.Fatalf("unexpected list %v", ids(got))
	}
}

func TestUpdateStatusRecordsTransition(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "A"})
	clock.Advance(time.Hour)

	got, err := s.UpdateStatus(ctx, l.ID, leads.StatusInProgress, "operator", " calling back ")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != leads.StatusInProgress {
		t.Fatalf("status not updated: %s", got.Status)
	}
	if !got.UpdatedAt.Equal(l.CreatedAt.Add(time.Hour)) {
		t.Fatalf("updatedAt not refreshed: %v", got.UpdatedAt)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("expected one action, got %+v", got.Actions)
	}
	a := got.Actions[0]
	if a.Type != leads.ActionStatusChange || a.By != "operator" || a.From != leads.StatusNew || a.To != leads.StatusInProgress || a.Comment != "calling back" {
		t.Fatalf("unexpected action %+v", a)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "A"})

	for _, bad := range []leads.Status{"", "not_a_status", "NEW", "done"} {
		_, err := s.UpdateStatus(ctx, l.ID, bad, "admin", "")
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%q: expected validation error, got %v", bad, err)
		}
	}
	got, _ := s.Get(ctx, l.ID)
	if got.Status != leads.StatusNew || len(got.Actions) != 0 || !got.UpdatedAt.Equal(l.UpdatedAt) {
		t.Fatalf("lead mutated by rejected update: %+v", got)
	}
}

func TestUpdateStatusRepeatedTransitionAppendsTwice(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "A"})
	for i := 0; i < 2; i++ {
		if _, err := s.UpdateStatus(ctx, l.ID, leads.StatusProcessed, "operator", ""); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	got, _ := s.Get(ctx, l.ID)
	if got.Status != leads.StatusProcessed || len(got.Actions) != 2 {
		t.Fatalf("unexpected state %+v", got)
	}
	if got.Actions[1].From != leads.StatusProcessed || got.Actions[1].To != leads.StatusProcessed {
		t.Fatalf("second transition not recorded as processed->processed: %+v", got.Actions[1])
	}
}

func TestMutationsOnMissingLead(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kvstore.New())
	checks := map[string]error{}
	_, checks["get"] = s.Get(ctx, "nope")
	_, checks["status"] = s.UpdateStatus(ctx, "nope", leads.StatusProcessed, "admin", "")
	_, checks["action"] = s.AppendAction(ctx, "nope", leads.Action{Type: leads.ActionCalled})
	_, checks["note"] = s.AppendNote(ctx, "nope", "hi", "admin")
	checks["delete"] = s.Delete(ctx, "nope")
	for name, err := range checks {
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
	}
}

func TestAppendActionAndNote(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "A"})
	clock.Advance(time.Minute)

	got, err := s.AppendAction(ctx, l.ID, leads.Action{Type: leads.ActionCalled, By: "operator", Details: "+7999"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Actions) != 1 || got.Actions[0].At.IsZero() || got.Status != leads.StatusNew {
		t.Fatalf("unexpected action append %+v", got)
	}
	got, err = s.AppendNote(ctx, l.ID, "prefers evenings", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Notes) != 1 || got.Notes[0].Text != "prefers evenings" || len(got.Actions) != 1 {
		t.Fatalf("unexpected note append %+v", got)
	}
	if _, err := s.AppendNote(ctx, l.ID, "  ", "admin"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty note, got %v", err)
	}
	if _, err := s.AppendAction(ctx, l.ID, leads.Action{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty action, got %v", err)
	}
}

func TestConcurrentAppendsAreSerialised(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "A"})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendAction(ctx, l.ID, leads.Action{Type: leads.ActionMessaged}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	got, _ := s.Get(ctx, l.ID)
	if len(got.Actions) != n {
		t.Fatalf("lost updates: %d of %d actions", len(got.Actions), n)
	}
}

func TestDeleteTwiceIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kvstore.New())
	l := mustCreate(t, s, leads.NewLead{Name: "A"})
	if err := s.Delete(ctx, l.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, l.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	list, _ := s.List(ctx, leads.Filter{})
	if len(list) != 0 {
		t.Fatalf("deleted lead still listed: %v", ids(list))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kvstore.New())
	a := mustCreate(t, s, leads.NewLead{Name: "A"})
	mustCreate(t, s, leads.NewLead{Name: "B"})
	if _, err := s.UpdateStatus(ctx, a.ID, leads.StatusProcessed, "admin", ""); err != nil {
		t.Fatal(err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.ByStatus[leads.StatusNew] != 1 || st.ByStatus[leads.StatusProcessed] != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if _, ok := st.ByStatus[leads.StatusDeleted]; !ok {
		t.Fatal("every status should be present in stats")
	}
}

func TestCleanupRemovesOldTerminalLeads(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.New()
	s, clock := newTestStore(t, backend)
	old := mustCreate(t, s, leads.NewLead{Name: "old"})
	if _, err := s.UpdateStatus(ctx, old.ID, leads.StatusProcessed, "admin", ""); err != nil {
		t.Fatal(err)
	}
	stillNew := mustCreate(t, s, leads.NewLead{Name: "new"})
	gone := mustCreate(t, s, leads.NewLead{Name: "gone"})
	if err := s.Delete(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}
	clock.Advance(48 * time.Hour)
	fresh := mustCreate(t, s, leads.NewLead{Name: "fresh"})
	if _, err := s.UpdateStatus(ctx, fresh.ID, leads.StatusProcessed, "admin", ""); err != nil {
		t.Fatal(err)
	}

	n, err := s.Cleanup(ctx, 24*time.Hour, leads.StatusProcessed)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	index, _ := backend.IDs(ctx)
	if len(index) != 2 || index[0] != fresh.ID || index[1] != stillNew.ID {
		t.Fatalf("index not compacted: %v", index)
	}
	if _, err := s.Cleanup(ctx, 0, leads.StatusProcessed); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type failingBackend struct {
	leads.Backend
	pushErr error
	removed []string
}

func (f *failingBackend) PushID(context.Context, string) error { return f.pushErr }

func (f *failingBackend) Remove(ctx context.Context, id string) error {
	f.removed = append(f.removed, id)
	return f.Backend.Remove(ctx, id)
}

func TestCreateRollsBackWhenIndexFails(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{Backend: kvstore.New(), pushErr: errors.New("redis down")}
	s, _ := newTestStore(t, fb)

	_, err := s.Create(ctx, leads.NewLead{Name: "A"})
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(fb.removed) != 1 {
		t.Fatalf("expected orphan record removal, got %v", fb.removed)
	}
	if _, err := fb.Load(ctx, fb.removed[0]); !errors.Is(err, leads.ErrNotExist) {
		t.Fatalf("orphan record left behind: %v", err)
	}
	if apperr.PublicMessage(err) == "redis down" {
		t.Fatal("backend detail leaked through public message")
	}
}

func ids(list []leads.Lead) []string {
	out := make([]string, 0, len(list))
	for _, l := range list {
		out = append(out, l.ID)
	}
	return out
}
