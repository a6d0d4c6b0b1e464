package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/keel"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// terminalStatuses mirrors record.Status.Terminal for SQL filtering.
var terminalStatuses = []string{
	string(record.StatusPermanentlyFailed),
	string(record.StatusObsolete),
	string(record.StatusUnknown),
}

// Insert persists a new record and assigns its monotonic id.
func (d *DB) Insert(ctx context.Context, tx storage.Tx, rec *record.Record) error {
	t, err := d.writeTx(tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	m := toRecordModel(rec)
	m.ID = 0 // let the database assign the id
	if _, err := t.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("keel/bunstore: insert record: %w", err)
	}
	rec.ID = m.ID
	return nil
}

// Update persists changes to an existing record.
func (d *DB) Update(ctx context.Context, tx storage.Tx, rec *record.Record) error {
	t, err := d.writeTx(tx)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now().UTC()
	m := toRecordModel(rec)
	res, err := t.bun.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("keel/bunstore: update record: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return keel.ErrRecordNotFound
	}
	return nil
}

// Delete removes a record by id. Absence is not an error.
func (d *DB) Delete(ctx context.Context, tx storage.Tx, recordID int64) error {
	t, err := d.writeTx(tx)
	if err != nil {
		return err
	}
	_, err = t.bun.NewDelete().
		TableExpr("keel_records").
		Where("id = ?", recordID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keel/bunstore: delete record: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (d *DB) Get(ctx context.Context, tx storage.Tx, recordID int64) (*record.Record, error) {
	t, err := d.tx(tx)
	if err != nil {
		return nil, err
	}
	m := new(recordModel)
	err = t.bun.NewSelect().Model(m).
		Where("id = ?", recordID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, keel.ErrRecordNotFound
		}
		return nil, fmt.Errorf("keel/bunstore: get record: %w", err)
	}
	return fromRecordModel(m), nil
}

// NextReady returns the lowest-id eligible ready record for the label,
// or (nil, nil) when idle.
func (d *DB) NextReady(ctx context.Context, tx storage.Tx, label, processID string) (*record.Record, error) {
	t, err := d.tx(tx)
	if err != nil {
		return nil, err
	}
	m := new(recordModel)
	err = t.bun.NewSelect().Model(m).
		Where("label = ?", label).
		Where("status = ?", string(record.StatusReady)).
		Where("(exclusive_process_id = '' OR exclusive_process_id = ?)", processID).
		Order("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("keel/bunstore: next ready: %w", err)
	}
	return fromRecordModel(m), nil
}

// AllWithStatus returns every record for the label in the given status.
func (d *DB) AllWithStatus(ctx context.Context, tx storage.Tx, label string, status record.Status) ([]*record.Record, error) {
	t, err := d.tx(tx)
	if err != nil {
		return nil, err
	}
	var models []recordModel
	err = t.bun.NewSelect().Model(&models).
		Where("label = ?", label).
		Where("status = ?", string(status)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keel/bunstore: all with status: %w", err)
	}
	return fromModels(models), nil
}

// Stale returns terminal records plus ready records that belong to a
// different process and so can never run here.
func (d *DB) Stale(ctx context.Context, tx storage.Tx, label, processID string) ([]*record.Record, error) {
	t, err := d.tx(tx)
	if err != nil {
		return nil, err
	}
	var models []recordModel
	err = t.bun.NewSelect().Model(&models).
		Where("label = ?", label).
		Where("(status IN (?) OR (status = ? AND exclusive_process_id != '' AND exclusive_process_id != ?))",
			bun.In(terminalStatuses), string(record.StatusReady), processID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keel/bunstore: stale records: %w", err)
	}
	return fromModels(models), nil
}

// Counts returns record counts per status for the label ("" = all).
func (d *DB) Counts(ctx context.Context, tx storage.Tx, label string) (map[record.Status]int64, error) {
	t, err := d.tx(tx)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string `bun:"status"`
		N      int64  `bun:"n"`
	}
	q := t.bun.NewSelect().
		TableExpr("keel_records").
		ColumnExpr("status").
		ColumnExpr("count(*) AS n").
		GroupExpr("status")
	if label != "" {
		q = q.Where("label = ?", label)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("keel/bunstore: counts: %w", err)
	}
	out := make(map[record.Status]int64, len(rows))
	for _, row := range rows {
		out[record.ParseStatus(row.Status)] += row.N
	}
	return out, nil
}

func fromModels(models []recordModel) []*record.Record {
	out := make([]*record.Record, 0, len(models))
	for i := range models {
		out = append(out, fromRecordModel(&models[i]))
	}
	return out
}
