package domain

import "context"

// JobStore persists job records so that every process sharing the backing
// storage observes the same state. Mutations on one id are serialized across
// processes.
//
// Read paths never fail the caller: a missing, corrupt or unreadable record is
// reported as absent and the fault is logged by the implementation.
type JobStore interface {
	// Create persists a new record. It fails if the id already exists.
	Create(ctx context.Context, job *Job) error
	// Get returns the record for id, or false when absent.
	Get(ctx context.Context, id string) (*Job, bool)
	// Update merges patch into the current record under the exclusive lock.
	// It returns false when the record is absent.
	Update(ctx context.Context, id string, patch JobPatch) (*Job, bool)
	// Mutate runs fn against the current record under the exclusive lock and
	// writes the result back unless fn returns an error. It returns ErrNotFound
	// when the record is absent.
	Mutate(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	// Delete removes the record.
	Delete(ctx context.Context, id string) error
	// ListIDs enumerates all stored ids.
	ListIDs(ctx context.Context) []string
}
