// Package id defines identity helpers for keel's ephemeral and
// process-scoped identifiers.
//
// Record identifiers are NOT defined here: a record's id is a
// monotonically increasing int64 assigned by the store at insert time,
// because claim order is FIFO within a label. This package covers the
// two identifiers that are not rows: operation ids (one per in-memory
// execution attempt, K-sortable, used in logs and traces) and process
// ids (the exclusive-process token restricting a record to the process
// that created it).
package id

import (
	"fmt"

	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	// PrefixOperation prefixes operation ids ("op_...").
	PrefixOperation Prefix = "op"
)

// OperationID identifies one in-memory durable operation. It is
// ephemeral: never persisted, lost on crash, regenerated on reclaim.
type OperationID struct {
	inner typeid.TypeID
	valid bool
}

// NewOperationID generates a new K-sortable operation id.
func NewOperationID() OperationID {
	tid, err := typeid.Generate(string(PrefixOperation))
	if err != nil {
		// The prefix is a package constant; failure is a programming error.
		panic(fmt.Sprintf("id: invalid prefix %q: %v", PrefixOperation, err))
	}
	return OperationID{inner: tid, valid: true}
}

// ParseOperationID parses an "op_..." string into an OperationID.
func ParseOperationID(s string) (OperationID, error) {
	tid, err := typeid.Parse(s)
	if err != nil {
		return OperationID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if tid.Prefix() != string(PrefixOperation) {
		return OperationID{}, fmt.Errorf("id: expected prefix %q, got %q", PrefixOperation, tid.Prefix())
	}
	return OperationID{inner: tid, valid: true}, nil
}

// String returns the canonical "op_..." form, or "" for the zero value.
func (o OperationID) String() string {
	if !o.valid {
		return ""
	}
	return o.inner.String()
}

// IsZero reports whether the id is the zero value.
func (o OperationID) IsZero() bool { return !o.valid }

// NewProcessID generates a fresh exclusive-process identifier. Each
// local process sharing a store (main app, extension, sidecar) should
// generate one at install time and reuse it across launches; records
// carrying a different process id are invisible to this process's
// queues.
func NewProcessID() string {
	return uuid.NewString()
}
