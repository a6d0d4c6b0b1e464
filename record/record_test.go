package record_test

import (
	"testing"

	"github.com/xraph/keel/record"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want record.Status
	}{
		{"ready", record.StatusReady},
		{"running", record.StatusRunning},
		{"permanently_failed", record.StatusPermanentlyFailed},
		{"obsolete", record.StatusObsolete},
		{"unknown", record.StatusUnknown},
		{"", record.StatusUnknown},
		{"pending", record.StatusUnknown},
		{"READY", record.StatusUnknown},
	}
	for _, tt := range tests {
		if got := record.ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[record.Status]bool{
		record.StatusReady:             false,
		record.StatusRunning:           false,
		record.StatusPermanentlyFailed: true,
		record.StatusObsolete:          true,
		record.StatusUnknown:           true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestEligibleFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rec       record.Record
		processID string
		want      bool
	}{
		{"open ready record", record.Record{Status: record.StatusReady}, "p1", true},
		{"running record", record.Record{Status: record.StatusRunning}, "p1", false},
		{"terminal record", record.Record{Status: record.StatusObsolete}, "p1", false},
		{"exclusive, same process", record.Record{Status: record.StatusReady, ExclusiveProcessID: "p1"}, "p1", true},
		{"exclusive, other process", record.Record{Status: record.StatusReady, ExclusiveProcessID: "p2"}, "p1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.EligibleFor(tt.processID); got != tt.want {
				t.Errorf("EligibleFor(%q) = %v, want %v", tt.processID, got, tt.want)
			}
		})
	}
}

func TestStaleFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rec       record.Record
		processID string
		want      bool
	}{
		{"ready open record", record.Record{Status: record.StatusReady}, "p1", false},
		{"running record", record.Record{Status: record.StatusRunning}, "p1", false},
		{"permanently failed", record.Record{Status: record.StatusPermanentlyFailed}, "p1", true},
		{"obsolete", record.Record{Status: record.StatusObsolete}, "p1", true},
		{"unrecognised status", record.Record{Status: record.StatusUnknown}, "p1", true},
		{"ready, this process's exclusive", record.Record{Status: record.StatusReady, ExclusiveProcessID: "p1"}, "p1", false},
		{"ready, foreign exclusive", record.Record{Status: record.StatusReady, ExclusiveProcessID: "p2"}, "p1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.StaleFor(tt.processID); got != tt.want {
				t.Errorf("StaleFor(%q) = %v, want %v", tt.processID, got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := &record.Record{
		ID:      7,
		Label:   "l",
		Status:  record.StatusReady,
		Payload: []byte("data"),
	}
	cp := orig.Clone()
	cp.Payload[0] = 'X'
	cp.Status = record.StatusRunning

	if string(orig.Payload) != "data" {
		t.Errorf("clone shares payload backing array: %q", orig.Payload)
	}
	if orig.Status != record.StatusReady {
		t.Errorf("clone shares status: %q", orig.Status)
	}
}
