package main

import (
	"time"

	"signcap/settings"
	"signcap/workflow"
)

// Sink abstracts the display layer so both the Bubble Tea TUI and the
// Fyne GUI receive the same workflow events.
type Sink interface {
	Update(s workflow.Snapshot)
	Elapsed(d time.Duration)
	Prefs(p settings.Preferences)
	Notice(text string)
	DeviceLine(text string)
}
