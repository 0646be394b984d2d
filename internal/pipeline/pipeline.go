package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"bidsmirror/internal/catalog"
	"bidsmirror/internal/convert"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/mirror"
	"bidsmirror/internal/publish"
	"bidsmirror/internal/reconcile"
	"bidsmirror/internal/services"
	"bidsmirror/internal/workspace"
)

// Stage names stamped on the context and on failures.
const (
	StageMirror    = "mirror"
	StageReconcile = "reconcile"
	StageWorkspace = "workspace"
	StageConvert   = "convert"
	StagePublish   = "publish"
)

// Status is the tagged outcome of one unit's pipeline.
type Status int

const (
	Completed Status = iota
	Skipped
	Abstained
	Failed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Abstained:
		return "abstained"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure describes why a unit failed.
type Failure struct {
	Stage   string
	Kind    string
	Message string
	Trace   string
	Err     error
}

// Result is what the runner reports for a unit. Manifest is the published
// manifest for Completed and the previously published one for Skipped.
type Result struct {
	Unit     catalog.Unit
	Status   Status
	Manifest *reconcile.Manifest
	Failure  *Failure
	Duration time.Duration
}

// Collaborators the runner drives, in pipeline order.
type (
	Mirror interface {
		Ensure(ctx context.Context, unitID string) (mirror.Outcome, error)
	}
	Reconciler interface {
		Decide(ctx context.Context, unitID, branch string, cur reconcile.Current) (reconcile.Decision, *reconcile.Manifest, error)
	}
	Workspace interface {
		Prepare(ctx context.Context, unitID, branch string) (workspace.WorkingCopy, error)
	}
	Converter interface {
		Run(ctx context.Context, req convert.Request) (convert.Result, error)
	}
	Publisher interface {
		Publish(ctx context.Context, in publish.Input) (publish.Outcome, error)
	}
)

// Deps bundles the collaborators.
type Deps struct {
	Mirror     Mirror
	Reconciler Reconciler
	Workspace  Workspace
	Converter  Converter
	Publisher  Publisher
}

// Params are the pass-wide values every unit shares.
type Params struct {
	ToolVersion      string
	SessionLimit     *int
	PrimaryExtension string
}

// Runner executes the per-unit pipeline.
type Runner struct {
	deps   Deps
	params Params
	logger *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(deps Deps, params Params, logger *slog.Logger) *Runner {
	return &Runner{
		deps:   deps,
		params: params,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run processes one unit. It never returns an error and never panics: every
// fault, including a panic in any collaborator, becomes a Failed result.
// unit.Label must already hold the target branch.
func (r *Runner) Run(ctx context.Context, unit catalog.Unit) (result Result) {
	started := time.Now()
	ctx = services.WithUnitID(ctx, unit.ID)
	logger := logging.WithContext(ctx, r.logger)
	stage := ""

	defer func() {
		if rec := recover(); rec != nil {
			err := services.Wrap(services.ErrPanic, stage, "recovered panic", fmt.Sprint(rec), nil)
			result = Result{Unit: unit, Status: Failed, Failure: &Failure{
				Stage:   stage,
				Kind:    services.FaultPanic,
				Message: err.Error(),
				Trace:   string(debug.Stack()),
				Err:     err,
			}}
		}
		result.Duration = time.Since(started)
		r.logResult(logger, result)
	}()

	fail := func(err error) Result {
		return Result{Unit: unit, Status: Failed, Failure: newFailure(stage, err)}
	}

	stage = StageMirror
	outcome, err := r.deps.Mirror.Ensure(services.WithStage(ctx, stage), unit.ID)
	if err != nil {
		return fail(err)
	}
	if outcome == mirror.Denied {
		return Result{Unit: unit, Status: Abstained}
	}

	stage = StageReconcile
	current := reconcile.Current{ToolVersion: r.params.ToolVersion, SessionLimit: r.params.SessionLimit}
	decision, prev, err := r.deps.Reconciler.Decide(services.WithStage(ctx, stage), unit.ID, unit.Label, current)
	if err != nil {
		return fail(err)
	}
	switch decision {
	case reconcile.Abstain:
		return Result{Unit: unit, Status: Abstained}
	case reconcile.Skip:
		return Result{Unit: unit, Status: Skipped, Manifest: prev}
	}

	stage = StageWorkspace
	wc, err := r.deps.Workspace.Prepare(services.WithStage(ctx, stage), unit.ID, unit.Label)
	if err != nil {
		return fail(err)
	}

	stage = StageConvert
	converted, err := r.deps.Converter.Run(services.WithStage(ctx, stage), convert.Request{
		UnitID:       unit.ID,
		SessionLimit: r.params.SessionLimit,
		OutputRoot:   wc.Dir,
	})
	if err != nil {
		return fail(err)
	}

	stage = StagePublish
	manifest := reconcile.Manifest{
		ToolVersion:        r.params.ToolVersion,
		ParameterSignature: reconcile.ParameterSignature(r.params.SessionLimit, r.params.PrimaryExtension),
		SessionLimit:       r.params.SessionLimit,
		SessionsConverted:  converted.SessionsConverted,
		TotalSessions:      converted.TotalSessions,
	}
	if _, err := r.deps.Publisher.Publish(services.WithStage(ctx, stage), publish.Input{
		Dir:           wc.Dir,
		Branch:        wc.Branch,
		Manifest:      manifest,
		Notifications: converted.Notifications,
	}); err != nil {
		return fail(err)
	}

	return Result{Unit: unit, Status: Completed, Manifest: &manifest}
}

func (r *Runner) logResult(logger *slog.Logger, res Result) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "unit_"+res.Status.String()),
		logging.String(logging.FieldBranch, res.Unit.Label),
		logging.Duration("duration", res.Duration),
	}
	if res.Manifest != nil {
		attrs = append(attrs,
			logging.String("tool_version", res.Manifest.ToolVersion),
			logging.Int("sessions_converted", res.Manifest.SessionsConverted),
		)
	}
	if res.Status != Failed {
		logger.Info("unit "+res.Status.String(), logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs,
		logging.String(logging.FieldStage, res.Failure.Stage),
		logging.String("fault_kind", res.Failure.Kind),
		logging.Error(res.Failure.Err),
	)
	logging.ErrorWithContext(logger, "unit failed", "unit_failed", attrs...)
}

func newFailure(stage string, err error) *Failure {
	return &Failure{
		Stage:   stage,
		Kind:    services.FaultKind(err),
		Message: err.Error(),
		Trace:   ErrorChain(err),
		Err:     err,
	}
}

// ErrorChain renders every error in err's wrap tree, one per line, indented
// by depth.
func ErrorChain(err error) string {
	var b strings.Builder
	var walk func(error, int)
	walk = func(e error, depth int) {
		if e == nil {
			return
		}
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), e, e.Error())
		switch x := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner, depth+1)
			}
		default:
			walk(errors.Unwrap(e), depth+1)
		}
	}
	walk(err, 0)
	return strings.TrimRight(b.String(), "\n")
}
