package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"bidsmirror/internal/config"
	"bidsmirror/internal/convert"
	"bidsmirror/internal/fileutil"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/reconcile"
	"bidsmirror/internal/services"
	"bidsmirror/internal/validator"
)

// Artifact paths relative to the working copy root.
const (
	IgnoreFile         = ".bidsignore"
	MessagesFile       = ".messages.json"
	DerivativeDir      = "derivatives/bidsmirror"
	DerivativeDescFile = DerivativeDir + "/dataset_description.json"
)

const (
	bidsVersion = "1.10.0"
	remoteName  = "origin"
)

// ignoreContent keeps pipeline bookkeeping out of schema validation.
const ignoreContent = MessagesFile + "\n.datalad/\n"

// VCS is the set of git capabilities publishing needs.
type VCS interface {
	AddAll(ctx context.Context, dir string) error
	HasStagedChanges(ctx context.Context, dir string) (bool, error)
	Commit(ctx context.Context, dir, message string) error
	HasUpstream(ctx context.Context, dir, branch string) (bool, error)
	Push(ctx context.Context, dir string) error
	PushSetUpstream(ctx context.Context, dir, remote, branch string) error
}

// Validator produces validation reports for a dataset root.
type Validator interface {
	Validate(ctx context.Context, root string) (validator.Reports, error)
}

// Input is everything one unit's publish needs.
type Input struct {
	Dir           string
	Branch        string
	Manifest      reconcile.Manifest
	Notifications []convert.Notification
}

// Outcome reports what publishing changed remotely.
type Outcome struct {
	Committed bool
}

// Options configures the writer.
type Options struct {
	ManifestPath  string
	CommitMessage string
	ToolName      string
}

// OptionsFrom extracts publish settings from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ManifestPath:  cfg.Run.ManifestPath,
		CommitMessage: cfg.Run.CommitMessage,
		ToolName:      filepath.Base(cfg.Converter.Binary),
	}
}

// Writer lays out a unit's artifacts, then commits and pushes them.
type Writer struct {
	git       VCS
	validator Validator
	opts      Options
	logger    *slog.Logger
}

// NewWriter constructs a Writer. A nil validator skips validation reports.
func NewWriter(git VCS, v Validator, opts Options, logger *slog.Logger) *Writer {
	return &Writer{
		git:       git,
		validator: v,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "publish"),
	}
}

// Publish writes the artifacts and pushes the branch.
func (w *Writer) Publish(ctx context.Context, in Input) (Outcome, error) {
	logger := logging.WithContext(ctx, w.logger)
	if err := w.WriteArtifacts(ctx, in); err != nil {
		return Outcome{}, err
	}

	if err := w.git.AddAll(ctx, in.Dir); err != nil {
		return Outcome{}, err
	}
	staged, err := w.git.HasStagedChanges(ctx, in.Dir)
	if err != nil {
		return Outcome{}, err
	}
	if staged {
		if err := w.git.Commit(ctx, in.Dir, w.opts.CommitMessage); err != nil {
			return Outcome{}, err
		}
	} else {
		logger.Info("no changes to commit", logging.String(logging.FieldBranch, in.Branch))
	}

	// Push even without a new commit so a commit left unpushed by an
	// interrupted run still reaches the mirror.
	tracked, err := w.git.HasUpstream(ctx, in.Dir, in.Branch)
	if err != nil {
		return Outcome{}, err
	}
	if tracked {
		err = w.git.Push(ctx, in.Dir)
	} else {
		err = w.git.PushSetUpstream(ctx, in.Dir, remoteName, in.Branch)
	}
	if err != nil {
		return Outcome{}, err
	}

	logger.Info("published",
		logging.String(logging.FieldBranch, in.Branch),
		logging.Bool("committed", staged),
		logging.Int("sessions_converted", in.Manifest.SessionsConverted),
	)
	return Outcome{Committed: staged}, nil
}

// WriteArtifacts writes every artifact in order, each durably before the
// next. The manifest is always written last: if anything before it fails,
// no manifest exists and the unit is reprocessed on the next pass.
func (w *Writer) WriteArtifacts(ctx context.Context, in Input) error {
	if err := w.writeFile(in.Dir, IgnoreFile, []byte(ignoreContent)); err != nil {
		return err
	}

	desc, err := CanonicalJSON(w.derivativeDescription(in.Manifest))
	if err != nil {
		return fmt.Errorf("encode derivative description: %w", err)
	}
	if err := w.writeFile(in.Dir, DerivativeDescFile, desc); err != nil {
		return err
	}

	if err := w.writeNotifications(in.Dir, in.Notifications); err != nil {
		return err
	}

	if w.validator != nil {
		if err := w.writeReports(ctx, in.Dir); err != nil {
			return err
		}
	}

	manifest, err := CanonicalJSON(in.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return w.writeFile(in.Dir, w.opts.ManifestPath, manifest)
}

func (w *Writer) writeNotifications(dir string, notes []convert.Notification) error {
	if len(notes) == 0 {
		path := filepath.Join(dir, MessagesFile)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale notifications: %w", err)
		}
		return nil
	}
	data, err := CanonicalJSON(notes)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	return w.writeFile(dir, MessagesFile, data)
}

func (w *Writer) writeReports(ctx context.Context, dir string) error {
	reports, err := w.validator.Validate(ctx, dir)
	if err != nil {
		return err
	}
	if err := w.writeFile(dir, validator.TextReport, reports.Text); err != nil {
		return err
	}
	pretty, err := CanonicalizeJSON(reports.JSON)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publish", "reformat validation report", "", err)
	}
	return w.writeFile(dir, validator.JSONReport, pretty)
}

func (w *Writer) derivativeDescription(m reconcile.Manifest) map[string]any {
	return map[string]any{
		"Name":        "bidsmirror conversion record",
		"BIDSVersion": bidsVersion,
		"DatasetType": "derivative",
		"GeneratedBy": []any{
			map[string]any{
				"Name":    w.opts.ToolName,
				"Version": m.ToolVersion,
			},
		},
	}
}

func (w *Writer) writeFile(dir, rel string, data []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
