package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bidsmirror/internal/config"
	"bidsmirror/internal/failures"
	"bidsmirror/internal/ledger"
	"bidsmirror/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, apiURL string, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("BIDSMIRROR_GITHUB_TOKEN", "")
	if apiURL != "" {
		opts = append(opts, testsupport.WithHostingURL(apiURL))
	}
	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
work_dir = %q
failures_dir = %q
log_dir = %q
state_dir = %q

[hosting]
api_url = %q
raw_url = %q
git_url = %q
token = %q
organization = %q

[logging]
level = "error"
`,
		cfg.Paths.WorkDir, cfg.Paths.FailuresDir, cfg.Paths.LogDir, cfg.Paths.StateDir,
		cfg.Hosting.APIURL, cfg.Hosting.RawURL, cfg.Hosting.GitURL, cfg.Hosting.Token, cfg.Hosting.Organization,
	)
	testsupport.WriteFile(t, path, content)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestCheckOffline(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithStubbedBinaries("git", "nwb2bids"))

	out, _, err := runCLI(t, []string{"check", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK]")
	requireContains(t, out, "Converter:")
	if strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected failing check:\n%s", out)
	}
}

func TestCheckReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t, "", testsupport.WithToken(""))

	out, _, err := runCLI(t, []string{"check", "--offline"}, env.configPath)
	if err == nil {
		t.Fatal("expected failing preflight")
	}
	requireContains(t, out, "Hosting token:")
	requireContains(t, out, "[ERROR]")
}

func TestStatusEmptyLedger(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No passes recorded")
}

func TestStatusShowsRunsAndOutcomes(t *testing.T) {
	env := setupCLITestEnv(t, "")
	store := testsupport.MustOpenLedger(t, env.cfg)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.BeginRun(ctx, ledger.Run{RunID: "run-a", Branch: "draft", Workers: 2, StartedAt: started}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.RecordOutcome(ctx, ledger.Outcome{
		RunID: "run-a", UnitID: "000001", Label: "draft", Status: ledger.StatusFailed,
		FaultKind: "conversion_failure", RecordedAt: started.Add(time.Minute),
	}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	counts := ledger.Counts{Total: 1, Failed: 1}
	if err := store.FinishRun(ctx, "run-a", counts, started.Add(2*time.Minute), nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "run-a")
	requireContains(t, out, "2m0s")

	out, _, err = runCLI(t, []string{"status", "--run", "latest"}, env.configPath)
	if err != nil {
		t.Fatalf("status --run: %v", err)
	}
	requireContains(t, out, "000001")
	requireContains(t, out, "conversion_failure")

	out, _, err = runCLI(t, []string{"status", "--unit", "000001", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --unit: %v", err)
	}
	requireContains(t, out, `"status": "failed"`)
}

func TestFailuresListing(t *testing.T) {
	env := setupCLITestEnv(t, "")
	store := failures.NewStore(env.cfg.Paths.FailuresDir)
	for _, id := range []string{"000002", "000009"} {
		if _, err := store.Write(failures.Record{
			UnitID: id, Label: "draft", FaultKind: "version_control_failure",
			Message: "push rejected", Trace: "vcs: push: exit status 1", OccurredAt: time.Now(),
		}); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"failures"}, env.configPath)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	requireContains(t, out, "000002")
	requireContains(t, out, "000009")

	out, _, err = runCLI(t, []string{"failures", "000009", "--trace"}, env.configPath)
	if err != nil {
		t.Fatalf("failures --trace: %v", err)
	}
	requireContains(t, out, "vcs: push: exit status 1")
	if strings.Contains(out, "000002") {
		t.Fatalf("filter should exclude other units:\n%s", out)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			mu.Lock()
			deleted = append(deleted, r.URL.Path)
			mu.Unlock()
			if strings.HasSuffix(r.URL.Path, "/000404") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	env := setupCLITestEnv(t, srv.URL)
	workingCopy := filepath.Join(env.cfg.Paths.WorkDir, "000001")
	testsupport.WriteFile(t, filepath.Join(workingCopy, "dataset_description.json"), "{}")
	store := failures.NewStore(env.cfg.Paths.FailuresDir)
	for _, label := range []string{"draft", "nwb2bids-0.6"} {
		if _, err := store.Write(failures.Record{UnitID: "000001", Label: label, FaultKind: "timeout"}); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"reset", "000001"}, env.configPath)
	if err == nil {
		t.Fatal("expected refusal without --yes")
	}
	requireContains(t, out, "Would delete mirrors/000001")
	if len(deleted) != 0 {
		t.Fatalf("nothing should be deleted without --yes, got %v", deleted)
	}

	out, _, err = runCLI(t, []string{"reset", "000001", "000404", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Reset 000001")
	requireContains(t, out, "Reset 000404")
	if _, err := os.Stat(workingCopy); !os.IsNotExist(err) {
		t.Fatalf("expected working copy removed, stat err = %v", err)
	}
	if len(deleted) != 2 || deleted[0] != "/repos/mirrors/000001" {
		t.Fatalf("unexpected deletions: %v", deleted)
	}
	records, _, err := store.List()
	if err != nil || len(records) != 0 {
		t.Fatalf("every label's failure record should be cleared: %+v, %v", records, err)
	}
}

func TestResetRejectsMixedSelection(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, _, err := runCLI(t, []string{"reset", "000001", "--all"}, env.configPath); err == nil {
		t.Fatal("expected error when combining ids and --all")
	}
}

func TestSuperDatasetRejectsMixedSelection(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, _, err := runCLI(t, []string{"super-dataset", "000001", "--all"}, env.configPath); err == nil {
		t.Fatal("expected error when combining ids and --all")
	}
}

func TestBranchesToPrune(t *testing.T) {
	remote := []string{"draft", "git-annex", "old-run", "main", "feature/x", "old-run"}
	got := branchesToPrune(remote, []string{"draft", "main", "git-annex"})
	want := []string{"feature/x", "old-run"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("branchesToPrune = %v, want %v", got, want)
	}
}
