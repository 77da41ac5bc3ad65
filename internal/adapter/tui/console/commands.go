package console

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gloveterm/internal/usecase"
)

const pollInterval = 100 * time.Millisecond

// pollCmd schedules the next sink refresh.
func pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// scanCmd runs a scan asynchronously. A zero timeout scans until /stop.
func scanCmd(sess *usecase.DeviceSession, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return scanDoneMsg{Err: sess.Scan(ctx)}
	}
}

// connectCmd runs the full connect sequence asynchronously.
func connectCmd(sess *usecase.DeviceSession, id string) tea.Cmd {
	return func() tea.Msg {
		return connectDoneMsg{ID: id, Err: sess.Connect(context.Background(), id)}
	}
}

// writeCmd sends one command line to the device.
func writeCmd(sess *usecase.DeviceSession, input string) tea.Cmd {
	return func() tea.Msg {
		return writeDoneMsg{Input: input, Err: sess.Write(context.Background(), input)}
	}
}
