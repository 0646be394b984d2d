package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"bidsmirror/internal/command"
	"bidsmirror/internal/config"
	"bidsmirror/internal/services"
)

// Describer reports the version of a source checkout.
type Describer interface {
	DescribeTags(ctx context.Context, dir string) (string, error)
}

// CommandEngine runs the converter as an external process:
//
//	<binary> convert --dandiset-id ID --bids-directory DIR [--limit N] --messages-file F
type CommandEngine struct {
	Binary string
	// VersionOverride, when set, is reported instead of asking the binary.
	VersionOverride string
	// SourceDir, when set, is described with git to obtain the version.
	SourceDir string
	Timeout   time.Duration
	Exec      command.Executor
	Describer Describer
}

// NewCommandEngine builds an engine from the converter config.
func NewCommandEngine(cfg config.Converter, exec command.Executor, describer Describer) *CommandEngine {
	if exec == nil {
		exec = command.OSExecutor{}
	}
	return &CommandEngine{
		Binary:          cfg.Binary,
		VersionOverride: cfg.Version,
		SourceDir:       cfg.SourceDir,
		Timeout:         time.Duration(cfg.Timeout) * time.Second,
		Exec:            exec,
		Describer:       describer,
	}
}

// Convert runs one conversion and collects the notifications file.
func (e *CommandEngine) Convert(ctx context.Context, req Request) (Output, error) {
	messages, err := os.CreateTemp("", "bidsmirror-messages-*.json")
	if err != nil {
		return Output{}, fmt.Errorf("create messages file: %w", err)
	}
	messagesPath := messages.Name()
	_ = messages.Close()
	defer os.Remove(messagesPath)

	args := []string{"convert", "--dandiset-id", req.UnitID, "--bids-directory", req.OutputRoot}
	if req.SessionLimit != nil {
		args = append(args, "--limit", strconv.Itoa(*req.SessionLimit))
	}
	args = append(args, "--messages-file", messagesPath)

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	res, err := e.Exec.Run(runCtx, command.Spec{Binary: e.Binary, Args: args})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Output{}, services.Wrap(services.ErrTimeout, "convert", "run converter",
				fmt.Sprintf("exceeded %s", e.Timeout), err)
		}
		return Output{}, services.Wrap(services.ErrConversion, "convert", "run converter", "", err)
	}
	if !res.Success() {
		return Output{}, services.Wrap(services.ErrConversion, "convert", "run converter",
			fmt.Sprintf("exit status %d: %s", res.ExitCode, command.Tail(res.Combined, 2048)), nil)
	}

	data, err := os.ReadFile(messagesPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Output{}, fmt.Errorf("read messages file: %w", err)
	}
	notes, err := ParseNotifications(data)
	if err != nil {
		return Output{}, services.Wrap(services.ErrConversion, "convert", "read notifications", "", err)
	}
	return Output{Notifications: notes}, nil
}

// Version resolves the tool version: the override, then the source
// checkout's description, then the binary's --version output.
func (e *CommandEngine) Version(ctx context.Context) (string, error) {
	if v := strings.TrimSpace(e.VersionOverride); v != "" {
		return v, nil
	}
	if e.SourceDir != "" && e.Describer != nil {
		v, err := e.Describer.DescribeTags(ctx, e.SourceDir)
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, "convert", "describe converter source", e.SourceDir, err)
		}
		return v, nil
	}

	res, err := e.Exec.Run(ctx, command.Spec{Binary: e.Binary, Args: []string{"--version"}})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "convert", "converter --version", "", err)
	}
	if !res.Success() {
		return "", services.Wrap(services.ErrExternalTool, "convert", "converter --version",
			fmt.Sprintf("exit status %d", res.ExitCode), nil)
	}
	v := parseVersionOutput(string(res.Stdout))
	if v == "" {
		return "", services.Wrap(services.ErrExternalTool, "convert", "converter --version", "empty output", nil)
	}
	return v, nil
}

// parseVersionOutput takes the last word of the first non-empty line, so
// "nwb2bids, version 0.6.1" and "0.6.1" both yield "0.6.1".
func parseVersionOutput(out string) string {
	for line := range strings.Lines(out) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields[len(fields)-1]
	}
	return ""
}
