// Package console implements the Bubble Tea terminal UI for the device
// console: a CLI pane, a monitor pane for structured log records, an input
// line with history, and a telemetry status bar.
package console

import "time"

// pollMsg drives periodic refresh of the panes from the sinks.
type pollMsg time.Time

// scanDoneMsg carries the outcome of an asynchronous scan.
type scanDoneMsg struct {
	Err error
}

// connectDoneMsg carries the outcome of an asynchronous connect.
type connectDoneMsg struct {
	ID  string
	Err error
}

// writeDoneMsg carries the outcome of an asynchronous command send.
type writeDoneMsg struct {
	Input string
	Err   error
}
