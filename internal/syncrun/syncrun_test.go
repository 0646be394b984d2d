package syncrun_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"bidsmirror/internal/command"
	"bidsmirror/internal/config"
	"bidsmirror/internal/failures"
	"bidsmirror/internal/ledger"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
	"bidsmirror/internal/syncrun"
	"bidsmirror/internal/testsupport"
)

const publishedManifest = `{
  "tool_version": "0.6.1",
  "parameter_signature": "session_limit=2;primary_extension=.nwb",
  "session_limit": 2,
  "sessions_converted": 2,
  "total_sessions": 5
}`

// fakeHost serves the hosting API and raw-content routes for four units:
// 000001 needs work, 000002 is up to date, 000003 is forbidden, and
// 000004's conversion fails.
func fakeHost(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/orgs/mirrors":
			_, _ = w.Write([]byte(`{"login":"mirrors"}`))
		case r.URL.Path == "/repos/mirrors/000003":
			w.WriteHeader(http.StatusForbidden)
		case strings.HasPrefix(r.URL.Path, "/repos/mirrors/"):
			name := strings.TrimPrefix(r.URL.Path, "/repos/mirrors/")
			_, _ = w.Write([]byte(`{"name":"` + name + `","default_branch":"draft"}`))
		case r.URL.Path == "/raw/mirrors/000002/draft/derivatives/bidsmirror/run_manifest.json":
			_, _ = w.Write([]byte(publishedManifest))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeTools stands in for git and the converter.
type fakeTools struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTools) Run(_ context.Context, spec command.Spec) (command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec.Binary+" "+strings.Join(spec.Args, " "))
	f.mu.Unlock()

	if spec.Binary == "nwb2bids" {
		return f.convert(spec)
	}
	switch strings.Join(spec.Args, " ") {
	case "rev-parse --abbrev-ref HEAD":
		return command.Result{Stdout: []byte("draft\n")}, nil
	case "diff --cached --quiet":
		return command.Result{ExitCode: 1}, nil
	case "config --get branch.draft.remote":
		return command.Result{ExitCode: 1}, nil
	}
	if len(spec.Args) == 3 && spec.Args[0] == "clone" {
		if err := os.MkdirAll(filepath.Join(spec.Dir, spec.Args[2], ".git"), 0o755); err != nil {
			return command.Result{}, err
		}
	}
	return command.Result{}, nil
}

func (f *fakeTools) convert(spec command.Spec) (command.Result, error) {
	if slices.Equal(spec.Args, []string{"--version"}) {
		return command.Result{Stdout: []byte("nwb2bids, version 0.6.1\n")}, nil
	}
	unit := argValue(spec.Args, "--dandiset-id")
	if unit == "000004" {
		return command.Result{ExitCode: 1, Combined: []byte("no assets")}, nil
	}
	root := argValue(spec.Args, "--bids-directory")
	session := filepath.Join(root, "sub-01", "ses-a")
	if err := os.MkdirAll(session, 0o755); err != nil {
		return command.Result{}, err
	}
	if err := os.WriteFile(filepath.Join(session, "sub-01_ses-a.nwb"), []byte("x"), 0o644); err != nil {
		return command.Result{}, err
	}
	return command.Result{}, nil
}

func (f *fakeTools) ran(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func newConfig(t *testing.T, srv *httptest.Server) *config.Config {
	cfg := testsupport.NewConfig(t,
		testsupport.WithHostingURL(srv.URL),
		testsupport.WithCatalogUnits("000004", "000002", "000003", "000001"),
		testsupport.WithStubbedBinaries("git", "nwb2bids"),
	)
	cfg.Run.Workers = 2
	return cfg
}

func TestExecuteRecordsEveryOutcome(t *testing.T) {
	srv := fakeHost(t)
	cfg := newConfig(t, srv)
	tools := &fakeTools{}

	summary, err := syncrun.Execute(context.Background(), cfg, logging.NewNop(), syncrun.WithExecutor(tools))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := ledger.Counts{Total: 4, Completed: 1, Skipped: 1, Abstained: 1, Failed: 1}
	if summary.Counts != want {
		t.Fatalf("counts = %+v, want %+v", summary.Counts, want)
	}
	if summary.RunID == "" {
		t.Fatal("expected a run id")
	}

	converted := tools.ran("nwb2bids convert")
	if len(converted) != 2 {
		t.Fatalf("expected conversions for 000001 and 000004 only, got %v", converted)
	}
	if pushes := tools.ran("git push --set-upstream origin draft"); len(pushes) != 1 {
		t.Fatalf("expected one push, got %v", pushes)
	}

	manifest := filepath.Join(cfg.Paths.WorkDir, "000001", "derivatives", "bidsmirror", "run_manifest.json")
	data := testsupport.ReadFile(t, manifest)
	if !strings.Contains(data, `"tool_version": "0.6.1"`) {
		t.Fatalf("unexpected manifest:\n%s", data)
	}

	records := failures.NewStore(cfg.Paths.FailuresDir)
	if _, err := os.Stat(records.Path("000004", "draft")); err != nil {
		t.Fatalf("expected failure record for 000004: %v", err)
	}
	list, _, err := records.List()
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(list) != 1 || list[0].RunID != summary.RunID || list[0].FaultKind != "conversion_failure" {
		t.Fatalf("unexpected failure records: %+v", list)
	}

	store := testsupport.MustOpenLedger(t, cfg)
	run, err := store.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.RunID != summary.RunID || run.ToolVersion != "0.6.1" || !run.Finished() || run.Counts != want {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
	outcomes, err := store.Outcomes(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "runs", summary.RunID+".log")); err != nil {
		t.Fatalf("expected per-run log: %v", err)
	}
}

func TestExecuteRefusesConcurrentPass(t *testing.T) {
	srv := fakeHost(t)
	cfg := newConfig(t, srv)

	held := flock.New(cfg.LockPath())
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-lock failed: locked=%v err=%v", locked, err)
	}
	defer held.Unlock()

	tools := &fakeTools{}
	_, err = syncrun.Execute(context.Background(), cfg, logging.NewNop(), syncrun.WithExecutor(tools))
	if !errors.Is(err, syncrun.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(tools.ran("")) != 0 {
		t.Fatalf("no tools should run while locked, got %v", tools.ran(""))
	}
}

func TestExecuteFailsPreflight(t *testing.T) {
	srv := fakeHost(t)
	cfg := newConfig(t, srv)
	cfg.Converter.Binary = "bidsmirror-test-missing-converter"

	_, err := syncrun.Execute(context.Background(), cfg, logging.NewNop(), syncrun.WithExecutor(&fakeTools{}))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Converter") {
		t.Fatalf("error should name the failing check: %v", err)
	}
}

func TestExecuteRequiresToken(t *testing.T) {
	srv := fakeHost(t)
	cfg := newConfig(t, srv)
	cfg.Hosting.Token = ""

	_, err := syncrun.Execute(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExecuteRecordsCatalogFailure(t *testing.T) {
	srv := fakeHost(t)
	cfg := newConfig(t, srv)
	testsupport.WriteFile(t, cfg.Catalog.File, "units: [not-a-mapping\n")

	summary, err := syncrun.Execute(context.Background(), cfg, logging.NewNop(), syncrun.WithExecutor(&fakeTools{}))
	if err == nil {
		t.Fatal("expected catalog failure to abort the pass")
	}

	store := testsupport.MustOpenLedger(t, cfg)
	run, lerr := store.LatestRun(context.Background())
	if lerr != nil {
		t.Fatalf("LatestRun: %v", lerr)
	}
	if run.RunID != summary.RunID || run.Error == "" || !run.Finished() {
		t.Fatalf("expected finished run with error, got %+v", run)
	}
}
