package leads

import (
	"context"
	"errors"
)

// ErrNotExist is returned by backends for a missing record.
var ErrNotExist = errors.New("leads: record does not exist")

// Backend persists lead records and the reverse-chronological id index.
// Records and index are separate so a listed id may point at nothing;
// Store treats such ids as filtered out.
type Backend interface {
	Load(ctx context.Context, id string) (Lead, error)
	Save(ctx context.Context, lead Lead) error
	// Remove deletes the record only; the index keeps the id until RemoveIDs.
	Remove(ctx context.Context, id string) error
	// IDs returns the index, newest first.
	IDs(ctx context.Context) ([]string, error)
	// PushID puts id at the head of the index.
	PushID(ctx context.Context, id string) error
	// RemoveIDs drops ids from the index.
	RemoveIDs(ctx context.Context, ids ...string) error
}
