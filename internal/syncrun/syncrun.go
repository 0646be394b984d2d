package syncrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"bidsmirror/internal/batch"
	"bidsmirror/internal/catalog"
	"bidsmirror/internal/command"
	"bidsmirror/internal/config"
	"bidsmirror/internal/convert"
	"bidsmirror/internal/failures"
	"bidsmirror/internal/hosting"
	"bidsmirror/internal/ledger"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/mirror"
	"bidsmirror/internal/pipeline"
	"bidsmirror/internal/preflight"
	"bidsmirror/internal/publish"
	"bidsmirror/internal/reconcile"
	"bidsmirror/internal/services"
	"bidsmirror/internal/validator"
	"bidsmirror/internal/vcs"
	"bidsmirror/internal/workspace"
)

// ErrLocked reports that another pass on this host holds the work-dir lock.
var ErrLocked = errors.New("another sync pass is running")

// keepRuns is how many passes the ledger retains.
const keepRuns = 100

// Option customizes how a pass reaches the outside world.
type Option func(*runtime)

type runtime struct {
	exec   command.Executor
	now    func() time.Time
	mirror []mirror.Option
}

// WithExecutor replaces the process runner used for git, the converter,
// and the validator.
func WithExecutor(exec command.Executor) Option {
	return func(r *runtime) { r.exec = exec }
}

// WithMirrorOptions forwards options to the mirror manager.
func WithMirrorOptions(opts ...mirror.Option) Option {
	return func(r *runtime) { r.mirror = append(r.mirror, opts...) }
}

// Execute runs one batch pass: preflight, the host lock, the ledger, and the
// scheduler over every catalog unit. Per-unit faults land in failure records
// and the ledger; the returned error is reserved for setup failures, catalog
// enumeration failures, and interruption.
func Execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (batch.Summary, error) {
	if cfg == nil {
		return batch.Summary{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := runtime{exec: command.OSExecutor{}, now: time.Now}
	for _, opt := range opts {
		opt(&rt)
	}

	if err := cfg.RequireHostingToken(); err != nil {
		return batch.Summary{}, services.Wrap(services.ErrConfiguration, "", "sync", "", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return batch.Summary{}, services.Wrap(services.ErrConfiguration, "", "sync", "", err)
	}

	client := hosting.NewClient(hosting.ConfigFrom(cfg))
	if failed := failedChecks(preflight.RunAll(ctx, cfg, client)); len(failed) > 0 {
		return batch.Summary{}, services.Wrap(services.ErrConfiguration, "", "preflight",
			strings.Join(failed, "; "), nil)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return batch.Summary{}, fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return batch.Summary{}, fmt.Errorf("%w (lock held: %s)", ErrLocked, cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	runID := newRunID()
	ctx = services.WithRunID(ctx, runID)
	handler, closer, err := logging.OpenRunLog(cfg.Paths.LogDir, runID, cfg.Logging.Level, cfg.Hosting.Token)
	if err != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
		)
	} else {
		defer closer.Close()
		logger = logging.TeeLogger(logger, handler)
	}

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return batch.Summary{RunID: runID}, fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	var sessionLimit *int
	if n, ok := cfg.SessionLimit(); ok {
		sessionLimit = reconcile.Limit(n)
	}
	started := rt.now()
	if err := store.BeginRun(ctx, ledger.Run{
		RunID:        runID,
		Branch:       cfg.Run.Branch,
		Workers:      cfg.Run.Workers,
		UnitLimit:    cfg.Run.Limit,
		SessionLimit: sessionLimit,
		StartedAt:    started,
	}); err != nil {
		return batch.Summary{RunID: runID}, err
	}

	summary, runErr := pass(ctx, cfg, logger, rt, client, store, runID, sessionLimit)
	summary.RunID = runID

	finishCtx := context.WithoutCancel(ctx)
	if err := store.FinishRun(finishCtx, runID, summary.Counts, rt.now(), runErr); err != nil {
		logging.WarnWithContext(logger, "ledger finish failed", "ledger_write_failed", logging.Error(err))
	}
	if pruned, err := store.Prune(finishCtx, keepRuns); err != nil {
		logging.WarnWithContext(logger, "ledger prune failed", "ledger_write_failed", logging.Error(err))
	} else if pruned > 0 {
		logger.Debug("pruned ledger runs", slog.Int64("pruned", pruned))
	}
	return summary, runErr
}

func pass(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	rt runtime,
	client *hosting.Client,
	store *ledger.Store,
	runID string,
	sessionLimit *int,
) (batch.Summary, error) {
	git := vcs.New(vcs.WithExecutor(rt.exec), vcs.WithSecrets(client.Token()))
	invoker := convert.NewInvoker(
		convert.NewCommandEngine(cfg.Converter, rt.exec, git),
		cfg.Run.PrimaryExtension,
		logger,
	)

	toolVersion, err := invoker.Version(ctx)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("resolve converter version: %w", err)
	}
	if err := store.SetToolVersion(ctx, runID, toolVersion); err != nil {
		return batch.Summary{}, err
	}
	logging.WithContext(ctx, logger).Info("sync pass starting",
		logging.String(logging.FieldEventType, "sync_started"),
		logging.String("tool_version", toolVersion),
		logging.String(logging.FieldBranch, cfg.Run.Branch),
		logging.Int("workers", cfg.Run.Workers),
		logging.Int("limit", cfg.Run.Limit),
	)

	var v publish.Validator
	if cfg.Validator.Enabled {
		v = validator.New(cfg.Validator, rt.exec, logger)
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Mirror:     mirror.NewManager(client, mirror.OptionsFrom(cfg), logger, rt.mirror...),
		Reconciler: reconcile.New(client, cfg.Run.ManifestPath, logger),
		Workspace:  workspace.NewManager(git, client, workspace.OptionsFrom(cfg), logger),
		Converter:  invoker,
		Publisher:  publish.NewWriter(git, v, publish.OptionsFrom(cfg), logger),
	}, pipeline.Params{
		ToolVersion:      toolVersion,
		SessionLimit:     sessionLimit,
		PrimaryExtension: cfg.Run.PrimaryExtension,
	}, logger)

	source, err := catalog.NewSource(cfg)
	if err != nil {
		return batch.Summary{}, err
	}
	scheduler := batch.NewScheduler(source, runner, failures.NewStore(cfg.Paths.FailuresDir), store, batch.Options{
		Workers: cfg.Run.Workers,
		Limit:   cfg.Run.Limit,
		Branch:  cfg.Run.Branch,
		RunID:   runID,
	}, logger)
	return scheduler.Run(ctx)
}

func failedChecks(results []preflight.Result) []string {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	return failed
}

// newRunID returns a time-ordered UUIDv7, falling back to a random UUID.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
