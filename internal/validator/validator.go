package validator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bidsmirror/internal/command"
	"bidsmirror/internal/config"
	"bidsmirror/internal/fileutil"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
)

// Locations of validation artifacts, relative to the dataset root.
const (
	ReportDir  = "derivatives/validations"
	TextReport = ReportDir + "/bids_validation.txt"
	JSONReport = ReportDir + "/bids_validation.json"
	ConfigFile = ReportDir + "/dandiset_bids_validation_config.json"
)

// Reports holds the two validator outputs for one dataset.
type Reports struct {
	Text []byte
	// JSON is the validator's machine report exactly as written.
	JSON []byte
}

// Validator runs the external schema validator. The validator exits
// non-zero whenever it reports issues, so only a missing report counts as
// a failure.
type Validator struct {
	exec       command.Executor
	binary     string
	schema     string
	baseConfig string
	timeout    time.Duration
	logger     *slog.Logger
}

// New constructs a Validator from its config section.
func New(cfg config.Validator, exec command.Executor, logger *slog.Logger) *Validator {
	if exec == nil {
		exec = command.OSExecutor{}
	}
	return &Validator{
		exec:       exec,
		binary:     cfg.Binary,
		schema:     cfg.Schema,
		baseConfig: cfg.BaseConfig,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		logger:     logging.NewComponentLogger(logger, "validator"),
	}
}

// SeedConfig copies the base validator config into the dataset when the
// dataset has none of its own. It returns the config path to pass to the
// validator, or "" when there is nothing to pass.
func (v *Validator) SeedConfig(root string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(ConfigFile))
	exists, err := fileutil.Exists(target)
	if err != nil {
		return "", fmt.Errorf("inspect validator config: %w", err)
	}
	if exists {
		return target, nil
	}
	if v.baseConfig == "" {
		return "", nil
	}
	if err := fileutil.CopyFile(v.baseConfig, target); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "validator", "seed config", v.baseConfig, err)
	}
	return target, nil
}

// Validate seeds the dataset's validator config and produces both reports.
// Reports are written to a scratch directory and returned; the caller decides
// where and when they land in the dataset.
func (v *Validator) Validate(ctx context.Context, root string) (Reports, error) {
	logger := logging.WithContext(ctx, v.logger)
	configPath, err := v.SeedConfig(root)
	if err != nil {
		return Reports{}, err
	}

	scratch, err := os.MkdirTemp("", "bidsmirror-validation-*")
	if err != nil {
		return Reports{}, fmt.Errorf("create validation scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	text, err := v.run(ctx, filepath.Join(scratch, "report.txt"), configPath, root)
	if err != nil {
		return Reports{}, err
	}
	machine, err := v.run(ctx, filepath.Join(scratch, "report.json"), configPath, root, "--verbose", "--json")
	if err != nil {
		return Reports{}, err
	}

	logger.Info("validation reports produced",
		logging.Int("text_bytes", len(text)),
		logging.Int("json_bytes", len(machine)),
	)
	return Reports{Text: text, JSON: machine}, nil
}

func (v *Validator) run(ctx context.Context, outfile, configPath, root string, extra ...string) ([]byte, error) {
	args := []string{"--ignoreNiftiHeaders"}
	args = append(args, extra...)
	args = append(args, "--outfile", outfile)
	if v.schema != "" {
		args = append(args, "--schema", v.schema)
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	args = append(args, root)

	runCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	res, err := v.exec.Run(runCtx, command.Spec{Binary: v.binary, Args: args})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, services.Wrap(services.ErrTimeout, "validator", "run validator", fmt.Sprintf("exceeded %s", v.timeout), err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "validator", "run validator", "", err)
	}

	data, err := os.ReadFile(outfile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrValidation, "validator", "read report",
			fmt.Sprintf("%s not created (exit status %d): %s", filepath.Base(outfile), res.ExitCode, command.Tail(res.Combined, 2048)), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read validation report: %w", err)
	}
	return data, nil
}
