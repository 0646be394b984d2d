package main

import (
	"io"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"

	"bidsmirror/internal/ledger"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Work directory", statusError, "missing", false)
	want := "  Work directory:      [ERROR] missing"
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	text.EnableColors()
	got := renderStatusLine("git", statusOK, "/usr/bin/git", true)
	if !strings.HasPrefix(got, "\x1b[32m") {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "\x1b[0m") {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestOutcomeKind(t *testing.T) {
	cases := map[ledger.Status]statusKind{
		ledger.StatusCompleted: statusOK,
		ledger.StatusSkipped:   statusInfo,
		ledger.StatusAbstained: statusWarn,
		ledger.StatusFailed:    statusError,
	}
	for status, want := range cases {
		if got := outcomeKind(status); got != want {
			t.Errorf("outcomeKind(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderTableFitsRowsToColumns(t *testing.T) {
	out := renderTable([]column{textCol("Unit"), numCol("Status")}, [][]string{{"000001", "x", "dropped"}})
	if !strings.Contains(out, "000001") || !strings.Contains(out, "Status") || strings.Contains(out, "dropped") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}
