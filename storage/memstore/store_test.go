package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/keel"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
	"github.com/xraph/keel/storage/memstore"
)

func insert(t *testing.T, db *memstore.DB, rec *record.Record) *record.Record {
	t.Helper()
	err := db.Write(context.Background(), func(tx storage.Tx) error {
		return db.Insert(context.Background(), tx, rec)
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	a := insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})
	b := insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})

	if a.ID == 0 || b.ID == 0 {
		t.Fatalf("ids not assigned: %d, %d", a.ID, b.ID)
	}
	if b.ID <= a.ID {
		t.Errorf("ids not monotonic: first %d, second %d", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("timestamps not set on insert")
	}
}

func TestNextReadyIsFIFO(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	first := insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})

	ctx := context.Background()
	err := db.Read(ctx, func(tx storage.Tx) error {
		got, err := db.NextReady(ctx, tx, "l", "")
		if err != nil {
			return err
		}
		if got == nil || got.ID != first.ID {
			t.Errorf("NextReady = %+v, want id %d", got, first.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestNextReadyFiltersLabelStatusAndProcess(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	insert(t, db, &record.Record{Label: "other", Status: record.StatusReady})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusRunning})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusReady, ExclusiveProcessID: "pA"})
	open := insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})

	ctx := context.Background()
	tests := []struct {
		name      string
		processID string
		wantID    int64
	}{
		{"unrelated process skips exclusive", "pB", open.ID},
		{"owner sees its exclusive record first", "pA", open.ID - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Read(ctx, func(tx storage.Tx) error {
				got, err := db.NextReady(ctx, tx, "l", tt.processID)
				if err != nil {
					return err
				}
				if got == nil || got.ID != tt.wantID {
					t.Errorf("NextReady(%q) = %+v, want id %d", tt.processID, got, tt.wantID)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
		})
	}
}

func TestNextReadyIdleReturnsNil(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	ctx := context.Background()
	err := db.Read(ctx, func(tx storage.Tx) error {
		got, err := db.NextReady(ctx, tx, "empty", "")
		if err != nil {
			return err
		}
		if got != nil {
			t.Errorf("NextReady on empty store = %+v, want nil", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestWritesRejectedInReadTransaction(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	ctx := context.Background()
	err := db.Read(ctx, func(tx storage.Tx) error {
		if tx.Writable() {
			t.Error("read transaction reports Writable() = true")
		}
		return db.Insert(ctx, tx, &record.Record{Label: "l", Status: record.StatusReady})
	})
	if !errors.Is(err, keel.ErrTxReadOnly) {
		t.Errorf("Insert in read tx = %v, want ErrTxReadOnly", err)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	ctx := context.Background()
	boom := errors.New("boom")

	var insertedID int64
	err := db.Write(ctx, func(tx storage.Tx) error {
		rec := &record.Record{Label: "l", Status: record.StatusReady}
		if err := db.Insert(ctx, tx, rec); err != nil {
			return err
		}
		insertedID = rec.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write = %v, want boom", err)
	}

	err = db.Read(ctx, func(tx storage.Tx) error {
		_, err := db.Get(ctx, tx, insertedID)
		if !errors.Is(err, keel.ErrRecordNotFound) {
			t.Errorf("Get after rollback = %v, want ErrRecordNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestCommitHooksFireOnlyOnCommit(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	ctx := context.Background()

	var fired bool
	err := db.Write(ctx, func(tx storage.Tx) error {
		tx.OnCommit(func() { fired = true })
		return errors.New("rolled back")
	})
	if err == nil {
		t.Fatal("Write succeeded, want error")
	}
	if fired {
		t.Error("OnCommit hook fired on a rolled-back transaction")
	}

	err = db.Write(ctx, func(tx storage.Tx) error {
		tx.OnCommit(func() { fired = true })
		return nil
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !fired {
		t.Error("OnCommit hook did not fire on commit")
	}
}

func TestDeleteAbsentRecordIsNoError(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	ctx := context.Background()
	err := db.Write(ctx, func(tx storage.Tx) error {
		return db.Delete(ctx, tx, 9999)
	})
	if err != nil {
		t.Errorf("Delete of absent record = %v, want nil", err)
	}
}

func TestUpdateAbsentRecordFails(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	ctx := context.Background()
	err := db.Write(ctx, func(tx storage.Tx) error {
		return db.Update(ctx, tx, &record.Record{ID: 42, Label: "l", Status: record.StatusReady})
	})
	if !errors.Is(err, keel.ErrRecordNotFound) {
		t.Errorf("Update of absent record = %v, want ErrRecordNotFound", err)
	}
}

func TestStaleSelection(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	failed := insert(t, db, &record.Record{Label: "l", Status: record.StatusPermanentlyFailed})
	obsolete := insert(t, db, &record.Record{Label: "l", Status: record.StatusObsolete})
	foreign := insert(t, db, &record.Record{Label: "l", Status: record.StatusReady, ExclusiveProcessID: "dead-launch"})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusRunning})

	ctx := context.Background()
	err := db.Read(ctx, func(tx storage.Tx) error {
		stale, err := db.Stale(ctx, tx, "l", "current-launch")
		if err != nil {
			return err
		}
		want := map[int64]bool{failed.ID: true, obsolete.ID: true, foreign.ID: true}
		if len(stale) != len(want) {
			t.Fatalf("Stale returned %d records, want %d", len(stale), len(want))
		}
		for _, rec := range stale {
			if !want[rec.ID] {
				t.Errorf("Stale returned unexpected record %d (%s)", rec.ID, rec.Status)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestCountsGroupsByStatus(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusReady})
	insert(t, db, &record.Record{Label: "l", Status: record.StatusPermanentlyFailed})
	insert(t, db, &record.Record{Label: "other", Status: record.StatusReady})

	ctx := context.Background()
	err := db.Read(ctx, func(tx storage.Tx) error {
		counts, err := db.Counts(ctx, tx, "l")
		if err != nil {
			return err
		}
		if counts[record.StatusReady] != 2 {
			t.Errorf("ready count = %d, want 2", counts[record.StatusReady])
		}
		if counts[record.StatusPermanentlyFailed] != 1 {
			t.Errorf("failed count = %d, want 1", counts[record.StatusPermanentlyFailed])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestGetReturnsClone(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	rec := insert(t, db, &record.Record{Label: "l", Status: record.StatusReady, Payload: []byte("original")})

	ctx := context.Background()
	err := db.Read(ctx, func(tx storage.Tx) error {
		got, err := db.Get(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		got.Payload[0] = 'X'
		again, err := db.Get(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if string(again.Payload) != "original" {
			t.Errorf("stored payload mutated through a returned clone: %q", again.Payload)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestClosedDatabaseRejectsOperations(t *testing.T) {
	t.Parallel()

	db := memstore.New()
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := db.Write(context.Background(), func(tx storage.Tx) error { return nil })
	if !errors.Is(err, keel.ErrDatabaseClosed) {
		t.Errorf("Write on closed db = %v, want ErrDatabaseClosed", err)
	}
}
