package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/keel/record"
)

// recordModel is the table mapping for job records. One row per record;
// the payload column is owned by the job type that wrote it.
type recordModel struct {
	bun.BaseModel `bun:"table:keel_records"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	Label              string    `bun:"label,notnull"`
	Status             string    `bun:"status,notnull,default:'ready'"`
	FailureCount       int       `bun:"failure_count,notnull,default:0"`
	ExclusiveProcessID string    `bun:"exclusive_process_id,notnull,default:''"`
	Payload            []byte    `bun:"payload"`
	CreatedAt          time.Time `bun:"created_at,notnull"`
	UpdatedAt          time.Time `bun:"updated_at,notnull"`
}

func toRecordModel(r *record.Record) *recordModel {
	return &recordModel{
		ID:                 r.ID,
		Label:              r.Label,
		Status:             string(r.Status),
		FailureCount:       r.FailureCount,
		ExclusiveProcessID: r.ExclusiveProcessID,
		Payload:            r.Payload,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) *record.Record {
	return &record.Record{
		ID:                 m.ID,
		Label:              m.Label,
		Status:             record.ParseStatus(m.Status),
		FailureCount:       m.FailureCount,
		ExclusiveProcessID: m.ExclusiveProcessID,
		Payload:            m.Payload,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// sqliteDDL creates the schema on the embedded store. AUTOINCREMENT (as
// opposed to bare rowid reuse) keeps record ids monotonic and never
// reused, which claim ordering depends on.
var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS keel_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ready',
		failure_count INTEGER NOT NULL DEFAULT 0,
		exclusive_process_id TEXT NOT NULL DEFAULT '',
		payload BLOB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS keel_records_claim_idx
		ON keel_records (label, status, id)`,
}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS keel_records (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		label TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ready',
		failure_count INT NOT NULL DEFAULT 0,
		exclusive_process_id TEXT NOT NULL DEFAULT '',
		payload BYTEA,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS keel_records_claim_idx
		ON keel_records (label, status, id)`,
}
