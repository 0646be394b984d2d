package failures

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		unit, label, want string
	}{
		{"000123", "", "000123.json"},
		{"000123", "draft", "000123_draft.json"},
		{"000123", "feature/new branch", "000123_feature-new-branch.json"},
		{"000123", "../..", "000123.json"},
	}
	for _, tt := range tests {
		if got := FileName(tt.unit, tt.label); got != tt.want {
			t.Fatalf("FileName(%q, %q) = %q, want %q", tt.unit, tt.label, got, tt.want)
		}
	}
}

func TestWriteListClear(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "failures"))
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Write(Record{UnitID: "000200", Label: "draft", FaultKind: "conversion_failure", Message: "boom", OccurredAt: when}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path, err := store.Write(Record{UnitID: "000100", Label: "draft", FaultKind: "panic", Message: "first", OccurredAt: when})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Overwrite the same unit.
	if _, err := store.Write(Record{UnitID: "000100", Label: "draft", FaultKind: "panic", Message: "second", OccurredAt: when}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "000100_draft.json" {
		t.Fatalf("path = %s", path)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "garbage.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, skipped, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[0].UnitID != "000100" || records[0].Message != "second" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if !records[0].OccurredAt.Equal(when) {
		t.Fatalf("timestamp not preserved: %v", records[0].OccurredAt)
	}
	if len(skipped) != 1 || skipped[0] != "garbage.json" {
		t.Fatalf("skipped = %v", skipped)
	}

	removed, err := store.Clear("000100", "draft")
	if err != nil || !removed {
		t.Fatalf("Clear = %v, %v", removed, err)
	}
	removed, err = store.Clear("000100", "draft")
	if err != nil || removed {
		t.Fatalf("second Clear = %v, %v", removed, err)
	}
}

func TestListMissingDir(t *testing.T) {
	records, skipped, err := NewStore(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil || records != nil || skipped != nil {
		t.Fatalf("List = %v, %v, %v", records, skipped, err)
	}
}

func TestWriteRequiresUnit(t *testing.T) {
	if _, err := NewStore(t.TempDir()).Write(Record{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClearUnitRemovesEveryLabel(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, rec := range []Record{
		{UnitID: "000001", FaultKind: "timeout"},
		{UnitID: "000001", Label: "draft", FaultKind: "timeout"},
		{UnitID: "000001", Label: "nwb2bids/0.6", FaultKind: "timeout"},
		{UnitID: "000010", Label: "draft", FaultKind: "timeout"},
	} {
		if _, err := store.Write(rec); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.ClearUnit("000001")
	if err != nil || removed != 3 {
		t.Fatalf("ClearUnit = %d, %v", removed, err)
	}
	records, _, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].UnitID != "000010" {
		t.Fatalf("remaining records = %+v", records)
	}
	if n, err := NewStore(filepath.Join(t.TempDir(), "missing")).ClearUnit("000001"); err != nil || n != 0 {
		t.Fatalf("missing dir: %d, %v", n, err)
	}
}
