package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"bidsmirror/internal/ledger"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label  string
	colors text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

// renderStatusLine formats one check result as "  label:   [KIND] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	line := fmt.Sprintf("  %-20s [%s]", label+":", statusKindLabel(kind))
	if message != "" {
		line += " " + message
	}
	return paint(line, kind, colorize)
}

func statusKindLabel(kind statusKind) string {
	if style, ok := statusStyles[kind]; ok {
		return style.label
	}
	return statusStyles[statusInfo].label
}

func paint(s string, kind statusKind, colorize bool) string {
	style, ok := statusStyles[kind]
	if !colorize || !ok {
		return s
	}
	return style.colors.Sprint(s)
}

// outcomeKind maps a unit outcome onto the status palette.
func outcomeKind(status ledger.Status) statusKind {
	switch status {
	case ledger.StatusCompleted:
		return statusOK
	case ledger.StatusAbstained:
		return statusWarn
	case ledger.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
