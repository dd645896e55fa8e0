package ui

import (
	"fmt"

	"github.com/tbourn/go-dose-timer/internal/dosing"
)

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorWarning = 203 // red
	colorSafe    = 114 // green
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderState colors s for the timer state: red while within the warning
// threshold, green once past it, gray when no dose exists.
func RenderState(state dosing.State, s string) string {
	switch state {
	case dosing.StateWarning:
		return paint(colorWarning, s)
	case dosing.StateSafe:
		return paint(colorSafe, s)
	default:
		return paint(colorMuted, s)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// SetColor enables or disables color output globally.
func SetColor(enabled bool) {
	noColor = !enabled
}
