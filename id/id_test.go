package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/keel/id"
)

func TestNewOperationID(t *testing.T) {
	t.Parallel()

	opID := id.NewOperationID()
	if opID.IsZero() {
		t.Fatal("NewOperationID returned the zero value")
	}
	if !strings.HasPrefix(opID.String(), "op_") {
		t.Errorf("String() = %q, want op_ prefix", opID.String())
	}
}

func TestParseOperationID(t *testing.T) {
	t.Parallel()

	orig := id.NewOperationID()
	parsed, err := id.ParseOperationID(orig.String())
	if err != nil {
		t.Fatalf("ParseOperationID(%q): %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}

	if _, err := id.ParseOperationID("not an id"); err == nil {
		t.Error("ParseOperationID accepted garbage")
	}
	if _, err := id.ParseOperationID("user_01h455vb4pex5vsknk084sn02q"); err == nil {
		t.Error("ParseOperationID accepted a foreign prefix")
	}
}

func TestZeroOperationID(t *testing.T) {
	t.Parallel()

	var zero id.OperationID
	if !zero.IsZero() {
		t.Error("zero value IsZero() = false")
	}
	if zero.String() != "" {
		t.Errorf("zero value String() = %q, want empty", zero.String())
	}
}

func TestNewProcessIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pid := id.NewProcessID()
		if pid == "" {
			t.Fatal("NewProcessID returned empty string")
		}
		if seen[pid] {
			t.Fatalf("NewProcessID returned duplicate %q", pid)
		}
		seen[pid] = true
	}
}
