package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"bidsmirror/internal/catalog"
	"bidsmirror/internal/failures"
	"bidsmirror/internal/ledger"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/pipeline"
	"bidsmirror/internal/services"
)

// UnitRunner processes one unit and reports its tagged result.
type UnitRunner interface {
	Run(ctx context.Context, unit catalog.Unit) pipeline.Result
}

// FailureSink persists and clears per-unit failure records.
type FailureSink interface {
	Write(rec failures.Record) (string, error)
	Clear(unitID, label string) (bool, error)
}

// OutcomeRecorder stores unit outcomes for later inspection.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o ledger.Outcome) error
}

// Options are the run parameters of one pass.
type Options struct {
	// Workers is the pool size: 1 runs sequentially, 0 uses every CPU.
	Workers int
	// Limit keeps only the first Limit units after sorting; 0 keeps all.
	Limit int
	// Branch is the label given to units that do not carry their own.
	Branch string
	RunID  string
}

// Summary is the result of one pass.
type Summary struct {
	RunID      string
	Counts     ledger.Counts
	Failures   []string
	Results    []pipeline.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Scheduler enumerates the catalog and dispatches every unit to the runner.
type Scheduler struct {
	source   catalog.Source
	runner   UnitRunner
	failures FailureSink
	recorder OutcomeRecorder
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler constructs a Scheduler. recorder may be nil.
func NewScheduler(source catalog.Source, runner UnitRunner, sink FailureSink, recorder OutcomeRecorder, opts Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:   source,
		runner:   runner,
		failures: sink,
		recorder: recorder,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "batch"),
		now:      time.Now,
	}
}

// Plan lists, labels, sorts, and truncates the catalog.
func (s *Scheduler) Plan(ctx context.Context) ([]catalog.Unit, error) {
	units, err := s.source.List(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "batch", "list catalog", "", err)
	}
	for i := range units {
		if units[i].Label == "" {
			units[i].Label = s.opts.Branch
		}
	}
	units = catalog.Dedupe(units)
	catalog.Sort(units)
	if s.opts.Limit > 0 && len(units) > s.opts.Limit {
		units = units[:s.opts.Limit]
	}
	return units, nil
}

// Run executes one pass. Unit failures never abort the pass: the returned
// error is non-nil only when the catalog cannot be listed or ctx ends.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	ctx = services.WithRunID(ctx, s.opts.RunID)
	logger := logging.WithContext(ctx, s.logger)
	summary := Summary{RunID: s.opts.RunID, StartedAt: s.now()}

	units, err := s.Plan(ctx)
	if err != nil {
		return summary, err
	}
	groups := groupByID(units)
	workers := s.workerCount(len(groups))
	logger.Info("batch started",
		logging.Int("units", len(units)),
		logging.Int("workers", workers),
		logging.String(logging.FieldBranch, s.opts.Branch),
	)

	results := make([]pipeline.Result, len(units))
	dispatched := make([]bool, len(units))
	failurePaths := make([]string, len(units))

	process := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(logger, "unit handling panicked", "batch_panic",
					logging.String(logging.FieldUnitID, units[i].ID),
					logging.String("panic", fmt.Sprint(r)),
				)
				if !dispatched[i] {
					results[i] = pipeline.Result{
						Unit:   units[i],
						Status: pipeline.Failed,
						Failure: &pipeline.Failure{
							Stage:   "batch",
							Kind:    "panic",
							Message: fmt.Sprint(r),
							Trace:   string(debug.Stack()),
						},
					}
					dispatched[i] = true
				}
			}
		}()
		results[i] = s.runner.Run(ctx, units[i])
		dispatched[i] = true
		failurePaths[i] = s.handle(ctx, logger, results[i])
	}

	// Units sharing an id share a working copy, so a group always runs on
	// one worker in order.
	runGroup := func(group []int) {
		for _, i := range group {
			if ctx.Err() != nil {
				return
			}
			process(i)
		}
	}

	if workers == 1 {
		for _, group := range groups {
			if ctx.Err() != nil {
				break
			}
			runGroup(group)
		}
	} else {
		jobs := make(chan []int)
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for group := range jobs {
					runGroup(group)
				}
			}()
		}
	dispatch:
		for _, group := range groups {
			select {
			case jobs <- group:
			case <-ctx.Done():
				break dispatch
			}
		}
		close(jobs)
		wg.Wait()
	}

	for i, res := range results {
		if !dispatched[i] {
			continue
		}
		summary.Results = append(summary.Results, res)
		summary.Counts.Add(ledgerStatus(res.Status))
		if failurePaths[i] != "" {
			summary.Failures = append(summary.Failures, failurePaths[i])
		}
	}
	summary.FinishedAt = s.now()

	logger.Info("batch finished",
		logging.Int("completed", summary.Counts.Completed),
		logging.Int("skipped", summary.Counts.Skipped),
		logging.Int("abstained", summary.Counts.Abstained),
		logging.Int("failed", summary.Counts.Failed),
		logging.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("batch interrupted after %d of %d units: %w", summary.Counts.Total, len(units), err)
	}
	return summary, nil
}

// groupByID partitions unit indices by unit id, keeping first-seen order.
func groupByID(units []catalog.Unit) [][]int {
	var groups [][]int
	index := make(map[string]int, len(units))
	for i, u := range units {
		g, ok := index[u.ID]
		if !ok {
			g = len(groups)
			index[u.ID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (s *Scheduler) workerCount(units int) int {
	workers := s.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if units > 0 && workers > units {
		workers = units
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// handle routes a result to the failure sink and the ledger and returns the
// failure record path, if one was written.
func (s *Scheduler) handle(ctx context.Context, logger *slog.Logger, res pipeline.Result) string {
	unitLogger := logger.With(logging.String(logging.FieldUnitID, res.Unit.ID))
	var path string
	switch res.Status {
	case pipeline.Failed:
		rec := failures.Record{
			UnitID:     res.Unit.ID,
			Label:      res.Unit.Label,
			FaultKind:  res.Failure.Kind,
			Message:    res.Failure.Message,
			Trace:      res.Failure.Trace,
			RunID:      s.opts.RunID,
			OccurredAt: s.now().UTC(),
		}
		written, err := s.failures.Write(rec)
		if err != nil {
			logging.ErrorWithContext(unitLogger, "failure record not written", "failure_record_error", logging.Error(err))
		}
		path = written
	case pipeline.Completed, pipeline.Skipped:
		if cleared, err := s.failures.Clear(res.Unit.ID, res.Unit.Label); err != nil {
			logging.WarnWithContext(unitLogger, "stale failure record not cleared", "failure_record_error", logging.Error(err))
		} else if cleared {
			unitLogger.Info("cleared previous failure record")
		}
	}

	if s.recorder != nil {
		if err := s.recorder.RecordOutcome(ctx, outcomeFor(s.opts.RunID, res, s.now())); err != nil {
			logging.WarnWithContext(unitLogger, "outcome not recorded in ledger", "ledger_error", logging.Error(err))
		}
	}
	return path
}

func outcomeFor(runID string, res pipeline.Result, at time.Time) ledger.Outcome {
	o := ledger.Outcome{
		RunID:      runID,
		UnitID:     res.Unit.ID,
		Label:      res.Unit.Label,
		Status:     ledgerStatus(res.Status),
		Duration:   res.Duration,
		RecordedAt: at,
	}
	if res.Manifest != nil {
		sessions := res.Manifest.SessionsConverted
		o.ToolVersion = res.Manifest.ToolVersion
		o.SessionsConverted = &sessions
		o.TotalSessions = res.Manifest.TotalSessions.String()
	}
	if res.Failure != nil {
		o.FaultKind = res.Failure.Kind
		o.Message = res.Failure.Message
	}
	return o
}

func ledgerStatus(s pipeline.Status) ledger.Status {
	switch s {
	case pipeline.Completed:
		return ledger.StatusCompleted
	case pipeline.Skipped:
		return ledger.StatusSkipped
	case pipeline.Abstained:
		return ledger.StatusAbstained
	default:
		return ledger.StatusFailed
	}
}
