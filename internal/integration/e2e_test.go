//go:build integration
// +build integration

package integration

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gloveterm/internal/adapter/ble"
	"gloveterm/internal/domain"
	"gloveterm/internal/usecase"
)

// TestE2E_SessionPipeline drives the full scan/connect/write/notify cycle
// through an in-memory driver and verifies what lands in each sink.
func TestE2E_SessionPipeline(t *testing.T) {
	SkipIfShort(t)
	ctx := NewTestContext(t, 30*time.Second)

	drv := ble.NewMockDriver()
	cli := usecase.NewSink(0)
	monitor := usecase.NewSink(0)
	telemetry := usecase.NewTelemetryState()
	demux := usecase.NewDemux(usecase.DemuxOptions{
		CLI:       cli,
		Monitor:   monitor,
		Telemetry: telemetry,
		Logger:    slog.New(slog.DiscardHandler),
	})
	sess := usecase.NewDeviceSession(drv, demux, cli, usecase.SessionConfig{
		SettleDelay: time.Millisecond,
	}, slog.New(slog.DiscardHandler))
	sess.Run(ctx)

	glove := domain.Peripheral{ID: "AA:BB:CC:DD:EE:01", Name: "G-Love", RSSI: -48}
	drv.AddPeripheral(glove, []string{domain.NUSServiceUUID}, 2)

	// Scan until the mock is told to stop.
	scanDone := make(chan error, 1)
	go func() { scanDone <- sess.Scan(ctx) }()
	require.Eventually(t, func() bool {
		drv.EndScan()
		select {
		case err := <-scanDone:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return sess.State() == usecase.StateIdle
	}, 10*time.Second, 10*time.Millisecond)
	require.Len(t, sess.Discovered(), 1)

	require.NoError(t, sess.Connect(ctx, glove.ID))
	require.Equal(t, usecase.StateReady, sess.State())

	// Send a command; it is encoded and echoed.
	require.NoError(t, sess.Write(ctx, "imu start"))
	writes := drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "imu start\r\n", string(writes[0].Data))
	assert.Contains(t, cli.Lines(), "> imu start\n")

	// Fragmented notifications reassemble into records and prose, with
	// noisy telemetry tags kept off the monitor pane.
	drv.EmitNotify(glove.ID, []byte("I (200) WIFI: g"))
	drv.EmitNotify(glove.ID, []byte("ot ip\r\nI (201) FUSION: FUSION q:[1, 0, 0, 0]\r\nok> "))
	drv.EmitNotify(glove.ID, []byte("\n"))

	require.Eventually(t, func() bool {
		return len(monitor.Lines()) == 1 && len(cli.Lines()) == 2
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, "I (200) WIFI: got ip\n", monitor.Lines()[0])
	assert.Contains(t, cli.Lines(), "ok> ")

	// The suppressed record still fed telemetry.
	snap := telemetry.Snapshot()
	require.NotNil(t, snap.Fusion)

	// Link loss resets the session and flushes pending text.
	drv.EmitNotify(glove.ID, []byte("dangling"))
	drv.EmitDisconnect(glove.ID)
	require.Eventually(t, func() bool {
		return sess.State() == usecase.StateIdle
	}, 10*time.Second, 10*time.Millisecond)
	assert.Contains(t, cli.Lines(), "dangling")
}
