package usecase_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gloveterm/internal/adapter/ble"
	"gloveterm/internal/domain"
	"gloveterm/internal/usecase"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type sessionFixture struct {
	drv     *ble.MockDriver
	sess    *usecase.DeviceSession
	cli     *usecase.Sink
	monitor *usecase.Sink
	cancel  context.CancelFunc
}

func newSessionFixture(t *testing.T, settle time.Duration) *sessionFixture {
	t.Helper()
	drv := ble.NewMockDriver()
	cli := usecase.NewSink(100)
	monitor := usecase.NewSink(100)
	demux := usecase.NewDemux(usecase.DemuxOptions{
		CLI:     cli,
		Monitor: monitor,
		Logger:  slog.New(slog.DiscardHandler),
	})
	sess := usecase.NewDeviceSession(drv, demux, cli, usecase.SessionConfig{
		SettleDelay: settle,
	}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	sess.Run(ctx)
	t.Cleanup(cancel)
	return &sessionFixture{drv: drv, sess: sess, cli: cli, monitor: monitor, cancel: cancel}
}

func glovePeripheral(id string) (domain.Peripheral, []string) {
	return domain.Peripheral{ID: id, Name: "G-Love", RSSI: -52},
		[]string{domain.NUSServiceUUID}
}

func (f *sessionFixture) scan(t *testing.T) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.sess.Scan(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.sess.State() == usecase.StateScanning
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		f.drv.EndScan()
		select {
		case err := <-done:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, waitFor, tick)

	// Idle is entered by the scan-stopped event, which trails every queued
	// discovery; once it lands the list is settled.
	require.Eventually(t, func() bool {
		return f.sess.State() == usecase.StateIdle
	}, waitFor, tick)
}

func (f *sessionFixture) connectReady(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.sess.Connect(context.Background(), id))
	require.Equal(t, usecase.StateReady, f.sess.State())
}

func TestScanDiscoversAndDeduplicates(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 3) // reported four times in total

	f.scan(t)

	list := f.sess.Discovered()
	require.Len(t, list, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", list[0].ID)
	assert.Equal(t, "G-Love", list[0].Name)
	assert.Equal(t, usecase.StateIdle, f.sess.State())
}

func TestScanIgnoresForeignServices(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.drv.AddPeripheral(domain.Peripheral{ID: "other", Name: "Watch"},
		[]string{"0000180F-0000-1000-8000-00805F9B34FB"}, 0)

	f.scan(t)

	list := f.sess.Discovered()
	require.Len(t, list, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", list[0].ID)
}

func TestScanClearsPreviousResults(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)

	f.scan(t)
	require.Len(t, f.sess.Discovered(), 1)

	// The same peripheral is staged again; the list must not double up.
	f.scan(t)
	assert.Len(t, f.sess.Discovered(), 1)
}

func TestConnectFullSequence(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)

	f.connectReady(t, p.ID)

	assert.True(t, f.drv.IsConnected(p.ID))
	assert.Equal(t, domain.NUSNotifyUUID, f.drv.SubscribedChar(p.ID))

	connected := f.sess.Connected()
	require.NotNil(t, connected)
	assert.Equal(t, p.ID, connected.ID)
	require.NotNil(t, connected.Services)
	assert.True(t, connected.Services.HasCharacteristic(domain.NUSWriteUUID))
}

func TestConnectUnknownPeripheral(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)

	err := f.sess.Connect(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrPeripheralNotFound)
	assert.Equal(t, usecase.StateIdle, f.sess.State())
}

func TestConnectRejectedWhileInFlight(t *testing.T) {
	f := newSessionFixture(t, 300*time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)

	first := make(chan error, 1)
	go func() { first <- f.sess.Connect(context.Background(), p.ID) }()

	require.Eventually(t, func() bool {
		return f.sess.State() == usecase.StateConnecting
	}, waitFor, tick)

	err := f.sess.Connect(context.Background(), p.ID)
	assert.ErrorIs(t, err, domain.ErrBusy)

	require.NoError(t, <-first)
	assert.Equal(t, usecase.StateReady, f.sess.State())
}

func TestConnectRejectedWhileConnected(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	err := f.sess.Connect(context.Background(), p.ID)
	assert.ErrorIs(t, err, domain.ErrBusy)
}

func TestConnectFailureLeavesIdle(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)

	f.drv.ConnectErr = domain.ErrConnectFailed
	err := f.sess.Connect(context.Background(), p.ID)
	assert.ErrorIs(t, err, domain.ErrConnectFailed)
	assert.Equal(t, usecase.StateIdle, f.sess.State())
	assert.Nil(t, f.sess.Connected())
}

func TestSubscribeFailureTearsDownLink(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)

	f.drv.SubscribeErr = domain.ErrConnectFailed
	err := f.sess.Connect(context.Background(), p.ID)
	require.Error(t, err)
	assert.Equal(t, usecase.StateIdle, f.sess.State())
	assert.False(t, f.drv.IsConnected(p.ID))
}

func TestDisconnectDuringSettleAbortsConnect(t *testing.T) {
	f := newSessionFixture(t, time.Second)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)

	done := make(chan error, 1)
	go func() { done <- f.sess.Connect(context.Background(), p.ID) }()

	require.Eventually(t, func() bool {
		return f.drv.IsConnected(p.ID)
	}, waitFor, tick)
	f.drv.EmitDisconnect(p.ID)

	err := <-done
	assert.ErrorIs(t, err, domain.ErrConnectFailed)
	assert.Equal(t, usecase.StateIdle, f.sess.State())
}

func TestWriteEncodesAndEchoes(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	require.NoError(t, f.sess.Write(context.Background(), "led on"))

	writes := f.drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "led on\r\n", string(writes[0].Data))
	assert.Equal(t, domain.NUSWriteUUID, writes[0].CharUUID)
	assert.Contains(t, f.cli.Lines(), "> led on\n")
}

func TestWriteWhenNotConnected(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)

	err := f.sess.Write(context.Background(), "led on")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, f.cli.Lines())
}

func TestWriteFailureSuppressesEcho(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	f.drv.WriteErr = domain.ErrWriteFailed
	err := f.sess.Write(context.Background(), "led on")
	assert.ErrorIs(t, err, domain.ErrWriteFailed)
	assert.Empty(t, f.cli.Lines())
}

func TestNotifyBytesReachSinks(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	f.drv.EmitNotify(p.ID, []byte("I (42) WIFI: got ip\r\n"))
	f.drv.EmitNotify(p.ID, []byte("esp32> \n"))

	assert.Eventually(t, func() bool {
		return len(f.monitor.Lines()) == 1 && len(f.cli.Lines()) == 1
	}, waitFor, tick)
	assert.Equal(t, "I (42) WIFI: got ip\n", f.monitor.Lines()[0])
	assert.Equal(t, "esp32> ", f.cli.Lines()[0])
}

func TestNotifyFromForeignPeripheralIgnored(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	f.drv.EmitNotify("FF:FF:FF:FF:FF:FF", []byte("stray\n"))
	f.drv.EmitNotify(p.ID, []byte("real\n"))

	assert.Eventually(t, func() bool {
		return len(f.cli.Lines()) == 1
	}, waitFor, tick)
	assert.Equal(t, "real", f.cli.Lines()[0])
}

func TestPeripheralDisconnectFlushesAndResets(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	f.drv.EmitNotify(p.ID, []byte("half a promp"))
	f.drv.EmitDisconnect(p.ID)

	assert.Eventually(t, func() bool {
		return f.sess.State() == usecase.StateIdle
	}, waitFor, tick)
	assert.Nil(t, f.sess.Connected())
	assert.Contains(t, f.cli.Lines(), "half a promp")
}

func TestStaleDisconnectIgnored(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	f.drv.EmitDisconnect("FF:FF:FF:FF:FF:FF")
	f.drv.EmitNotify(p.ID, []byte("still here\n"))

	assert.Eventually(t, func() bool {
		return len(f.cli.Lines()) == 1
	}, waitFor, tick)
	assert.Equal(t, usecase.StateReady, f.sess.State())
}

func TestUserDisconnect(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	require.NoError(t, f.sess.Disconnect())
	assert.Equal(t, usecase.StateIdle, f.sess.State())
	assert.False(t, f.drv.IsConnected(p.ID))

	// Disconnecting again is a no-op.
	assert.NoError(t, f.sess.Disconnect())
}

func TestScanRejectedWhileConnected(t *testing.T) {
	f := newSessionFixture(t, time.Millisecond)
	p, svcs := glovePeripheral("AA:BB:CC:DD:EE:01")
	f.drv.AddPeripheral(p, svcs, 0)
	f.scan(t)
	f.connectReady(t, p.ID)

	err := f.sess.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
}
