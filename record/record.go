// Package record defines the persisted representation of one unit of
// work — the job record — and the store contract for querying and
// mutating records inside caller-supplied transactions.
package record

import "time"

// Status is the lifecycle state of a job record.
type Status string

const (
	// StatusReady means the record is waiting to be claimed by its
	// label's queue.
	StatusReady Status = "ready"
	// StatusRunning means a queue has claimed the record and an
	// operation holds it. A record found running at startup was
	// orphaned by a crash and is reset to ready.
	StatusRunning Status = "running"
	// StatusPermanentlyFailed means the record failed non-retryably or
	// exhausted its retry budget. Terminal; removed by pruning.
	StatusPermanentlyFailed Status = "permanently_failed"
	// StatusObsolete means the job logic reported the work is no longer
	// relevant. Terminal; treated as a successful no-op for cleanup.
	StatusObsolete Status = "obsolete"
	// StatusUnknown is the defensive catch-all for corrupted or
	// forward-incompatible data. Terminal; removed by pruning.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a stored string onto a Status, returning
// StatusUnknown for anything it does not recognise so that
// forward-incompatible rows degrade to prunable instead of poisoning
// the claim loop.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusReady, StatusRunning, StatusPermanentlyFailed, StatusObsolete:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the status is final for queue purposes.
// Terminal records are never claimed; a pruning pass deletes them.
func (s Status) Terminal() bool {
	switch s {
	case StatusPermanentlyFailed, StatusObsolete, StatusUnknown:
		return true
	default:
		return false
	}
}

// Record is one persisted unit of work and its retry state.
//
// ID is assigned by the store at insert time, monotonically increasing
// and never reused; within a label, claim order is ascending ID. Status
// and FailureCount are mutated only inside a write transaction.
type Record struct {
	ID           int64  `json:"id"`
	Label        string `json:"label"`
	Status       Status `json:"status"`
	FailureCount int    `json:"failure_count"`

	// ExclusiveProcessID, when set, restricts the record to the local
	// process that created it. Other processes sharing the store treat
	// the record as invisible for claiming and stale for pruning.
	ExclusiveProcessID string `json:"exclusive_process_id,omitempty"`

	// Payload is opaque to the queue; only the owning job type's
	// operation builder interprets it.
	Payload []byte `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EligibleFor reports whether the record may be claimed by a queue
// running as processID: it must be ready and either carry no exclusive
// process id or carry this process's. Claiming a record that belongs to
// a different process would cause duplicate execution, so every store
// implementation enforces this in NextReady as well.
func (r *Record) EligibleFor(processID string) bool {
	if r.Status != StatusReady {
		return false
	}
	return r.ExclusiveProcessID == "" || r.ExclusiveProcessID == processID
}

// StaleFor reports whether the record is dead weight for processID:
// terminal, or ready but permanently ineligible because it belongs to a
// different process.
func (r *Record) StaleFor(processID string) bool {
	if r.Status.Terminal() {
		return true
	}
	return r.Status == StatusReady && r.ExclusiveProcessID != "" && r.ExclusiveProcessID != processID
}

// Clone returns a deep copy. Stores return clones so callers can mutate
// freely before writing back.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Payload != nil {
		cp.Payload = make([]byte, len(r.Payload))
		copy(cp.Payload, r.Payload)
	}
	return &cp
}
