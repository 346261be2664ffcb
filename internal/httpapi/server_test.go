package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leads/kvstore"
	"github.com/m3rciful/mebelbot/internal/phone"
	"github.com/m3rciful/mebelbot/internal/pricing"
)

const testPassword = "correct horse"

type fixture struct {
	srv   *Server
	store *leads.Store

	mu       sync.Mutex
	notified []leads.Lead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: leads.NewStore(kvstore.New())}
	f.srv = New(Options{
		Store: f.store,
		Notify: func(_ context.Context, l leads.Lead) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.notified = append(f.notified, l)
		},
		Pricing: pricing.DefaultTable(),
		Phone:   phone.NewNormalizer("RU"),
		Admin: AdminOptions{
			PasswordHash: string(hash),
			JWTSecret:    "0123456789abcdef0123",
			TokenTTL:     time.Hour,
		},
		PublicRatePerMinute: 100,
		Go:                  func(fn func()) { fn() },
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/admin/login", map[string]string{"password": testPassword}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	var resp loginResponse
	decode(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (f *fixture) seed(t *testing.T, name string) leads.Lead {
	t.Helper()
	l, err := f.store.Create(context.Background(), leads.NewLead{Name: name, Phone: "+79990001111"})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestContactFormCreatesLeadAndNotifies(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/applications", map[string]string{
		"name":    "Ольга",
		"phone":   "8 (999) 000-22-33",
		"message": "Нужна кухня",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp createdResponse
	decode(t, rec, &resp)

	l, err := f.store.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if l.Source != leads.SourceWebsiteForm || l.Status != leads.StatusNew || l.Phone != "+79990002233" {
		t.Fatalf("unexpected lead %+v", l)
	}
	if len(f.notified) != 1 || f.notified[0].ID != l.ID {
		t.Fatalf("notified %+v", f.notified)
	}
}

func TestContactFormValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]any{
		"missing name": map[string]string{"phone": "+79990001111"},
		"blank name":   map[string]string{"name": "   "},
		"bad email":    map[string]string{"name": "Ольга", "email": "not-an-email"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := f.do(t, http.MethodPost, "/api/applications", body, ""); rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", rec.Code, rec.Body)
			}
		})
	}
	if list, _ := f.store.List(context.Background(), leads.Filter{}); len(list) != 0 {
		t.Fatalf("invalid requests created %d leads", len(list))
	}
	if len(f.notified) != 0 {
		t.Fatal("invalid requests notified operators")
	}
}

func TestCalculatorCreatesLeadWithEstimate(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/calculator", map[string]any{
		"name":  "Пётр",
		"phone": "+79990003344",
		"configuration": map[string]any{
			"kind": "kitchen", "length": 3, "material": "ldsp", "facade": "matte", "hardware": "standard",
		},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp createdResponse
	decode(t, rec, &resp)
	if resp.Estimate == nil || resp.Estimate.Price != 135000 {
		t.Fatalf("estimate %+v", resp.Estimate)
	}
	l, err := f.store.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if l.Source != leads.SourceCalculator {
		t.Fatalf("source %s", l.Source)
	}
}

func TestEstimate(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/estimate", map[string]any{"kind": "hallway", "length": 1.5, "material": "ldsp", "facade": "matte", "hardware": "standard"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var est pricing.Estimate
	decode(t, rec, &est)
	if est.Price != 45000 {
		t.Fatalf("price %d", est.Price)
	}

	rec = f.do(t, http.MethodPost, "/api/estimate", map[string]any{"kind": "spaceship", "length": 2, "material": "ldsp", "facade": "matte", "hardware": "standard"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/estimate", map[string]any{"kind": "hallway", "length": 1.5, "material": "ldsp"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("optional facade/hardware status %d: %s", rec.Code, rec.Body)
	}
	decode(t, rec, &est)
	if est.Price != 45000 {
		t.Fatalf("baseline price %d", est.Price)
	}

	rec = f.do(t, http.MethodPost, "/api/estimate", map[string]any{"kind": "hallway", "material": "ldsp"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing length status %d", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	details, _ := body.Details.(map[string]any)
	if body.Error != msgValidationFailed || details["length"] != "required" {
		t.Fatalf("validation body %+v", body)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/admin/applications", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/admin/applications", nil, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/admin/login", map[string]string{"password": "wrong"}, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	f.srv.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if rec := f.do(t, http.MethodGet, "/admin/stats", nil, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", rec.Code)
	}
}

func TestAdminListNewestFirst(t *testing.T) {
	f := newFixture(t)
	first := f.seed(t, "Первый")
	time.Sleep(2 * time.Millisecond)
	second := f.seed(t, "Второй")
	token := f.login(t)

	rec := f.do(t, http.MethodGet, "/admin/applications", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var list []leads.Lead
	decode(t, rec, &list)
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order %+v", list)
	}

	rec = f.do(t, http.MethodGet, "/admin/applications?status=processed", nil, token)
	decode(t, rec, &list)
	if len(list) != 0 {
		t.Fatalf("filter returned %d leads", len(list))
	}
	if rec := f.do(t, http.MethodGet, "/admin/applications?status=bogus", nil, token); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status %d", rec.Code)
	}
}

func TestPatchStatus(t *testing.T) {
	f := newFixture(t)
	l := f.seed(t, "Анна")
	token := f.login(t)
	path := "/admin/applications/" + l.ID

	rec := f.do(t, http.MethodPatch, path, map[string]string{"status": "not_a_status"}, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: %d %s", rec.Code, rec.Body)
	}
	unchanged, _ := f.store.Get(context.Background(), l.ID)
	if unchanged.Status != leads.StatusNew || len(unchanged.Actions) != 0 {
		t.Fatalf("invalid patch mutated lead: %+v", unchanged)
	}

	rec = f.do(t, http.MethodPatch, "/admin/applications/missing", map[string]string{"status": "processed"}, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing lead: %d", rec.Code)
	}

	rec = f.do(t, http.MethodPatch, path, map[string]string{"status": "processed", "comment": "договор подписан"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid patch: %d %s", rec.Code, rec.Body)
	}
	var updated leads.Lead
	decode(t, rec, &updated)
	if updated.Status != leads.StatusProcessed || len(updated.Actions) != 1 {
		t.Fatalf("unexpected lead %+v", updated)
	}
	if a := updated.Actions[0]; a.By != Actor || a.From != leads.StatusNew || a.Comment != "договор подписан" {
		t.Fatalf("unexpected action %+v", a)
	}
}

func TestNotesAndDelete(t *testing.T) {
	f := newFixture(t)
	l := f.seed(t, "Анна")
	token := f.login(t)
	path := "/admin/applications/" + l.ID

	rec := f.do(t, http.MethodPost, path+"/notes", map[string]string{"text": "перезвонить вечером"}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("note: %d", rec.Code)
	}
	var withNote leads.Lead
	decode(t, rec, &withNote)
	if len(withNote.Notes) != 1 || withNote.Notes[0].By != Actor {
		t.Fatalf("notes %+v", withNote.Notes)
	}

	if rec := f.do(t, http.MethodDelete, path, nil, token); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, path, nil, token); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, path, nil, token); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "А")
	f.seed(t, "Б")
	token := f.login(t)

	rec := f.do(t, http.MethodGet, "/admin/stats", nil, token)
	var st leads.Stats
	decode(t, rec, &st)
	if st.Total != 2 || st.ByStatus[leads.StatusNew] != 2 {
		t.Fatalf("stats %+v", st)
	}
}

type brokenStore struct{ LeadStore }

func (brokenStore) List(context.Context, leads.Filter) ([]leads.Lead, error) {
	return nil, errors.New("redis: connection refused on 10.0.0.5:6379")
}

func TestStoreFailureIsGeneric500(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	f.srv.store = brokenStore{}

	rec := f.do(t, http.MethodGet, "/admin/applications", nil, token)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("10.0.0.5")) {
		t.Fatalf("internal detail leaked: %s", rec.Body)
	}
}

func TestPublicRateLimit(t *testing.T) {
	f := newFixture(t)
	f.srv = New(Options{Store: f.store, Pricing: pricing.DefaultTable(), PublicRatePerMinute: 2})

	body := map[string]any{"kind": "kitchen", "length": 1, "material": "ldsp", "facade": "matte", "hardware": "standard"}
	for i := range 2 {
		if rec := f.do(t, http.MethodPost, "/api/estimate", body, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	if rec := f.do(t, http.MethodPost, "/api/estimate", body, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/admin/applications", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("admin routes without a password: %d", rec.Code)
	}
}
