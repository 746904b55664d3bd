package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	stepColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
)

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, successColor.Sprint("✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, errorColor.Sprint("✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, warningColor.Sprint("⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", labelColor.Sprint(label+":"), val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, stepColor.Sprint("→ "+msg))
}

// statusLabel colors a request status for listings.
func statusLabel(status string) string {
	switch status {
	case "pending":
		return warningColor.Sprint(status)
	case "resolved":
		return successColor.Sprint(status)
	case "unresolved":
		return errorColor.Sprint(status)
	}
	return status
}
