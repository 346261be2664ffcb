package leads

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/internal/apperr"
)

const component = "service.leads"

// Store implements lead lifecycle operations over a Backend.
// Mutations of one lead are serialised, so its audit trail keeps processing order.
type Store struct {
	backend Backend
	now     func() time.Time
	newID   func() (string, error)
	locks   keyedMutex
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides lead id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns a Store over backend. Ids are UUIDv7: a millisecond
// timestamp plus random bits, free of the callback separators "_" and "|".
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, fills defaults, persists the lead and indexes it.
func (s *Store) Create(ctx context.Context, in NewLead) (Lead, error) {
	const op = "leads.Create"
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Lead{}, apperr.Validation("name is required").WithOp(op)
	}
	if in.Source == "" {
		in.Source = SourceWebsiteForm
	}
	if !in.Source.Valid() {
		return Lead{}, apperr.Validation("invalid source").WithOp(op)
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !in.Priority.Valid() {
		return Lead{}, apperr.Validation("invalid priority").WithOp(op)
	}

	id, err := s.newID()
	if err != nil {
		return Lead{}, apperr.Internal(op, err)
	}
	now := s.now().UTC()
	lead := Lead{
		ID:        id,
		Name:      in.Name,
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		Message:   strings.TrimSpace(in.Message),
		Source:    in.Source,
		Priority:  in.Priority,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
		Actions:   []Action{},
		Notes:     []Note{},
	}
	ctx = logger.WithLeadID(ctx, id)
	if err := s.backend.Save(ctx, lead); err != nil {
		return Lead{}, s.fail(ctx, op, err)
	}
	if err := s.backend.PushID(ctx, id); err != nil {
		// An unindexed record is unreachable through List; drop it.
		_ = s.backend.Remove(ctx, id)
		return Lead{}, s.fail(ctx, op, err)
	}
	logger.Info(ctx, component, "lead.created",
		slog.String("source", string(lead.Source)),
		slog.String("lead_status", string(lead.Status)),
	)
	return lead, nil
}

// Get returns the lead with id.
func (s *Store) Get(ctx context.Context, id string) (Lead, error) {
	const op = "leads.Get"
	lead, err := s.backend.Load(ctx, id)
	if err != nil {
		return Lead{}, s.fail(logger.WithLeadID(ctx, id), op, err)
	}
	return lead, nil
}

// List returns leads matching f, newest first. Indexed ids without a record are skipped.
func (s *Store) List(ctx context.Context, f Filter) ([]Lead, error) {
	const op = "leads.List"
	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	out := make([]Lead, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		lead, err := s.backend.Load(ctx, id)
		if errors.Is(err, ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, s.fail(logger.WithLeadID(ctx, id), op, err)
		}
		if f.match(lead) {
			out = append(out, lead)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(list []Lead) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

// UpdateStatus moves the lead to status and records the transition.
// Repeating the current status is accepted and logged like any other transition.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, actor, comment string) (Lead, error) {
	const op = "leads.UpdateStatus"
	if !status.Valid() {
		return Lead{}, apperr.Validation("invalid status").WithOp(op)
	}
	return s.mutate(ctx, op, id, func(l *Lead, now time.Time) error {
		l.Actions = append(l.Actions, Action{
			Type:    ActionStatusChange,
			By:      actor,
			At:      now,
			From:    l.Status,
			To:      status,
			Comment: strings.TrimSpace(comment),
		})
		l.Status = status
		return nil
	})
}

// AppendAction appends a to the audit trail. At is set by the store.
func (s *Store) AppendAction(ctx context.Context, id string, a Action) (Lead, error) {
	const op = "leads.AppendAction"
	if strings.TrimSpace(a.Type) == "" {
		return Lead{}, apperr.Validation("action type is required").WithOp(op)
	}
	return s.mutate(ctx, op, id, func(l *Lead, now time.Time) error {
		a.At = now
		l.Actions = append(l.Actions, a)
		return nil
	})
}

// AppendNote appends a free-text note.
func (s *Store) AppendNote(ctx context.Context, id, text, by string) (Lead, error) {
	const op = "leads.AppendNote"
	text = strings.TrimSpace(text)
	if text == "" {
		return Lead{}, apperr.Validation("note text is required").WithOp(op)
	}
	return s.mutate(ctx, op, id, func(l *Lead, now time.Time) error {
		l.Notes = append(l.Notes, Note{Text: text, By: by, At: now})
		return nil
	})
}

// Delete removes the lead record. The index is compacted lazily by Cleanup.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "leads.Delete"
	ctx = logger.WithLeadID(ctx, id)
	unlock := s.locks.lock(id)
	defer unlock()
	if err := s.backend.Remove(ctx, id); err != nil {
		return s.fail(ctx, op, err)
	}
	logger.Info(ctx, component, "lead.deleted")
	return nil
}

// Stats counts all leads by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	all, err := s.List(ctx, Filter{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(all), ByStatus: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		st.ByStatus[status] = 0
	}
	for _, l := range all {
		st.ByStatus[l.Status]++
	}
	return st, nil
}

// Cleanup removes leads in one of statuses that were last updated before
// now-olderThan, and drops index entries without a record. It returns the
// number of removed leads.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration, statuses ...Status) (int, error) {
	const op = "leads.Cleanup"
	if olderThan <= 0 || len(statuses) == 0 {
		return 0, apperr.Validation("cleanup needs a positive age and at least one status").WithOp(op)
	}
	want := make(map[Status]struct{}, len(statuses))
	for _, st := range statuses {
		if !st.Valid() {
			return 0, apperr.Validation("invalid status").WithOp(op)
		}
		want[st] = struct{}{}
	}
	cutoff := s.now().UTC().Add(-olderThan)

	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return 0, s.fail(ctx, op, err)
	}
	var drop []string
	removed := 0
	for _, id := range ids {
		lead, err := s.backend.Load(ctx, id)
		switch {
		case errors.Is(err, ErrNotExist):
			drop = append(drop, id)
			continue
		case err != nil:
			return removed, s.fail(logger.WithLeadID(ctx, id), op, err)
		}
		if _, ok := want[lead.Status]; !ok || !lead.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.backend.Remove(ctx, id); err != nil && !errors.Is(err, ErrNotExist) {
			return removed, s.fail(logger.WithLeadID(ctx, id), op, err)
		}
		removed++
		drop = append(drop, id)
	}
	if len(drop) > 0 {
		if err := s.backend.RemoveIDs(ctx, drop...); err != nil {
			return removed, s.fail(ctx, op, err)
		}
	}
	logger.Info(ctx, component, "lead.cleanup",
		slog.Int("count", removed),
		slog.Int("index_dropped", len(drop)),
	)
	return removed, nil
}

func (s *Store) mutate(ctx context.Context, op, id string, fn func(*Lead, time.Time) error) (Lead, error) {
	ctx = logger.WithLeadID(ctx, id)
	unlock := s.locks.lock(id)
	defer unlock()

	lead, err := s.backend.Load(ctx, id)
	if err != nil {
		return Lead{}, s.fail(ctx, op, err)
	}
	now := s.now().UTC()
	if err := fn(&lead, now); err != nil {
		return Lead{}, err
	}
	lead.UpdatedAt = now
	if err := s.backend.Save(ctx, lead); err != nil {
		return Lead{}, s.fail(ctx, op, err)
	}
	logger.Debug(ctx, component, "lead.updated",
		slog.String("op", op),
		slog.String("lead_status", string(lead.Status)),
	)
	return lead, nil
}

func (s *Store) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrNotExist) {
		return apperr.NotFound("lead not found").WithOp(op)
	}
	logger.Error(ctx, component, "lead.store_failed",
		slog.String("op", op),
		slog.String("err", logger.Err(err)),
	)
	return apperr.Internal(op, err)
}
