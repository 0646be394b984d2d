// Package command runs external tools from an argument vector and reports
// their exit status and captured output. Callers decide what an exit status
// means; no caller inspects output text to detect failure.
package command
