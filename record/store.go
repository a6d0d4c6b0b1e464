package record

import (
	"context"

	"github.com/xraph/keel/storage"
)

// Store is the persistence contract for job records. Every method runs
// inside the caller-supplied transaction; mutating methods require a
// writable one and return keel.ErrTxReadOnly otherwise.
type Store interface {
	// Insert persists a new record and assigns its ID. The assigned ID
	// is strictly greater than every previously assigned ID.
	Insert(ctx context.Context, tx storage.Tx, rec *Record) error

	// Update persists changes to an existing record.
	// Returns keel.ErrRecordNotFound if the record no longer exists.
	Update(ctx context.Context, tx storage.Tx, rec *Record) error

	// Delete removes a record by id. Deleting an absent record is not
	// an error: success and completion-after-prune converge.
	Delete(ctx context.Context, tx storage.Tx, recordID int64) error

	// Get retrieves a record by id.
	// Returns keel.ErrRecordNotFound if absent.
	Get(ctx context.Context, tx storage.Tx, recordID int64) (*Record, error)

	// NextReady returns the lowest-id ready record for the label that
	// is eligible for processID (no exclusive process id, or a matching
	// one). Returns (nil, nil) when no eligible record exists — idle is
	// not an error. A record claimed by a different process must never
	// be returned; this is a correctness requirement, not an
	// optimization.
	NextReady(ctx context.Context, tx storage.Tx, label, processID string) (*Record, error)

	// AllWithStatus returns every record for the label in the given
	// status, in no guaranteed order. Used by recovery and pruning.
	AllWithStatus(ctx context.Context, tx storage.Tx, label string, status Status) ([]*Record, error)

	// Stale returns every record for the label that is terminal, or
	// ready but permanently ineligible for processID. Used by cleanup.
	Stale(ctx context.Context, tx storage.Tx, label, processID string) ([]*Record, error)

	// Counts returns the number of records per status for the label.
	Counts(ctx context.Context, tx storage.Tx, label string) (map[Status]int64, error)
}
