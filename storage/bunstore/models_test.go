package bunstore

import (
	"testing"
	"time"

	"github.com/xraph/keel/record"
)

func TestRecordModelRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	orig := &record.Record{
		ID:                 42,
		Label:              "upload",
		Status:             record.StatusRunning,
		FailureCount:       3,
		ExclusiveProcessID: "proc-1",
		Payload:            []byte(`{"file":"a.png"}`),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	got := fromRecordModel(toRecordModel(orig))
	if got.ID != orig.ID || got.Label != orig.Label || got.Status != orig.Status {
		t.Errorf("round trip = %+v, want %+v", got, orig)
	}
	if got.FailureCount != 3 || got.ExclusiveProcessID != "proc-1" {
		t.Errorf("retry state lost: %+v", got)
	}
	if string(got.Payload) != string(orig.Payload) {
		t.Errorf("payload = %q, want %q", got.Payload, orig.Payload)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v %v, want %v", got.CreatedAt, got.UpdatedAt, now)
	}
}

func TestFromRecordModelDegradesUnknownStatus(t *testing.T) {
	t.Parallel()

	m := &recordModel{ID: 1, Label: "l", Status: "some_future_status"}
	got := fromRecordModel(m)
	if got.Status != record.StatusUnknown {
		t.Errorf("status = %q, want %q", got.Status, record.StatusUnknown)
	}
	if !got.Status.Terminal() {
		t.Error("unrecognised status must be terminal so pruning removes it")
	}
}
