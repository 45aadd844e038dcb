package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/jarvis/internal/assistant"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// writeOutcome prints the assistant's reply to one turn. Denials and
// failures are colored so they stand out in the transcript.
func writeOutcome(w io.Writer, out assistant.Outcome) {
	color := colorCyan
	switch {
	case out.Denied, out.Fault:
		color = colorRed
	case !out.Succeeded && out.Category != "":
		color = colorYellow
	}
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "jarvis:"), colorize(color, out.Response))
	for _, h := range out.Hints {
		if h == assistant.HintRestartSuggested {
			fmt.Fprintln(w, colorize(colorYellow, "  (several commands failed recently; restarting jarvis may help)"))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
