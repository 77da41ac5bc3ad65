package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"gloveterm/internal/domain"
	"gloveterm/internal/infra/tracer"
)

// State is the device session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateSubscribing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// DefaultSettleDelay is the wait between a successful connect and catalog
// retrieval. Requesting the catalog immediately after connect is unreliable
// on real radio stacks; this is an empirically required interval, not a
// logical dependency, and is configurable so tests can shrink it.
const DefaultSettleDelay = 500 * time.Millisecond

// SessionConfig carries the identifiers and timing the session needs.
type SessionConfig struct {
	ServiceUUID    string
	NotifyCharUUID string
	WriteCharUUID  string
	SettleDelay    time.Duration
}

// DeviceSession owns the discovery list and the single active connection,
// and orchestrates scan/connect/subscribe/write/disconnect against the
// driver. Received notification bytes are fed, in driver delivery order, to
// the demultiplexer by the single event-loop goroutine started by Run; all
// shared state is mutex-guarded.
type DeviceSession struct {
	drv    domain.Driver
	demux  *Demux
	cli    *Sink
	cfg    SessionConfig
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	discovered []domain.Peripheral
	seen       map[string]struct{}
	connected  *domain.Peripheral

	connecting   bool
	pendingID    string
	settleCancel chan struct{}
	cancelClosed bool
}

// NewDeviceSession creates a session over the given driver. The CLI sink is
// the one the demux writes to; the session echoes sent commands into it.
func NewDeviceSession(drv domain.Driver, demux *Demux, cli *Sink, cfg SessionConfig, logger *slog.Logger) *DeviceSession {
	if cfg.ServiceUUID == "" {
		cfg.ServiceUUID = domain.NUSServiceUUID
	}
	if cfg.NotifyCharUUID == "" {
		cfg.NotifyCharUUID = domain.NUSNotifyUUID
	}
	if cfg.WriteCharUUID == "" {
		cfg.WriteCharUUID = domain.NUSWriteUUID
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceSession{
		drv:    drv,
		demux:  demux,
		cli:    cli,
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Run starts the event-loop goroutine consuming driver events until ctx is
// done or the driver closes its event channel. It must be called exactly
// once, before any scan or connect.
func (s *DeviceSession) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.drv.Events():
				if !ok {
					return
				}
				s.handleEvent(ev)
			}
		}
	}()
}

// State returns the current lifecycle state.
func (s *DeviceSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Discovered returns a snapshot of the discovery list in first-seen order.
func (s *DeviceSession) Discovered() []domain.Peripheral {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Peripheral, len(s.discovered))
	copy(out, s.discovered)
	return out
}

// Connected returns a copy of the connected peripheral, or nil.
func (s *DeviceSession) Connected() *domain.Peripheral {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == nil {
		return nil
	}
	p := *s.connected
	return &p
}

// Scan clears the discovery list and runs a scan filtered to the target
// service until the driver ends it (stop, ctx timeout, or failure). The
// caller is suspended for the duration of the scan.
func (s *DeviceSession) Scan(ctx context.Context) error {
	const op = "session.scan"
	ctx, span := tracer.StartSpan(ctx, op)
	defer span.End()

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return domain.NewSessionError(op, domain.ErrBusy, "session is "+state.String())
	}
	s.state = StateScanning
	s.discovered = nil
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	s.logger.Info("scan started", "service", s.cfg.ServiceUUID)
	err := s.drv.Scan(ctx, s.cfg.ServiceUUID)

	if err != nil {
		// The driver may have bailed before emitting its stop event.
		s.mu.Lock()
		if s.state == StateScanning {
			s.state = StateIdle
		}
		s.mu.Unlock()
		tracer.RecordError(span, err)
		return domain.WrapOp(op, err)
	}

	// The Idle transition belongs to the ScanStoppedEvent handler: it runs
	// after every queued discovery, so none are lost to a state race.
	s.mu.Lock()
	found := len(s.discovered)
	s.mu.Unlock()
	s.logger.Info("scan finished", "found", found)
	tracer.SetOK(span)
	return nil
}

// StopScan asks the driver to end an active scan. The blocked Scan call
// returns once the driver acknowledges.
func (s *DeviceSession) StopScan() error {
	return domain.WrapOp("session.stopscan", s.drv.StopScan())
}

// Connect connects to a previously discovered peripheral, waits out the
// settle delay, retrieves the catalog and subscribes to notifications. Only
// on full completion does the session become Ready. Any step failure leaves
// the session disconnected (Idle); there is no automatic retry. A second
// connect while one is in flight is rejected.
func (s *DeviceSession) Connect(ctx context.Context, id string) error {
	const op = "session.connect"
	ctx, span := tracer.StartSpan(ctx, op, tracer.WithStringAttr("peripheral.id", id))
	defer span.End()

	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return domain.NewSessionError(op, domain.ErrBusy, "connect in flight for "+s.pendingID)
	}
	if s.connected != nil {
		s.mu.Unlock()
		return domain.NewSessionError(op, domain.ErrBusy, "already connected to "+s.connected.ID)
	}
	target, ok := s.lookupLocked(id)
	if !ok {
		s.mu.Unlock()
		return domain.NewSessionError(op, domain.ErrPeripheralNotFound, id)
	}
	cancel := make(chan struct{})
	s.connecting = true
	s.pendingID = id
	s.settleCancel = cancel
	s.cancelClosed = false
	s.state = StateConnecting
	s.mu.Unlock()

	attempt := newAttemptID()
	log := s.logger.With("attempt", attempt, "peripheral", id)

	record, err := s.connectSequence(ctx, id, cancel, log)

	s.mu.Lock()
	s.connecting = false
	s.pendingID = ""
	s.settleCancel = nil
	if err == nil && s.cancelClosed {
		err = domain.NewSessionError(op, domain.ErrConnectFailed, "disconnected during connect")
	}
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		// Best effort: leave no half-open link behind.
		_ = s.drv.Disconnect(id)
		log.Warn("connect failed", "err", err)
		tracer.RecordError(span, err)
		return err
	}
	target.Services = record
	s.connected = &target
	s.state = StateReady
	s.mu.Unlock()

	log.Info("connected", "name", target.Name)
	tracer.SetOK(span)
	return nil
}

// connectSequence runs the driver steps outside the session lock so driver
// events keep flowing while the caller is suspended.
func (s *DeviceSession) connectSequence(ctx context.Context, id string, cancel chan struct{}, log *slog.Logger) (*domain.ServiceRecord, error) {
	const op = "session.connect"

	if err := s.drv.Connect(ctx, id); err != nil {
		return nil, domain.NewSessionError(op, domain.ErrConnectFailed, err.Error())
	}

	// Let the link settle before catalog discovery.
	timer := time.NewTimer(s.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-cancel:
		return nil, domain.NewSessionError(op, domain.ErrConnectFailed, "disconnected during settle delay")
	case <-ctx.Done():
		return nil, domain.NewSessionError(op, domain.ErrConnectFailed, ctx.Err().Error())
	}

	record, err := s.drv.RetrieveCatalog(ctx, id)
	if err != nil {
		return nil, domain.NewSessionError(op, domain.ErrConnectFailed, "catalog: "+err.Error())
	}

	s.setState(StateSubscribing)
	log.Debug("subscribing", "char", s.cfg.NotifyCharUUID)
	if err := s.drv.SubscribeNotify(ctx, id, s.cfg.ServiceUUID, s.cfg.NotifyCharUUID); err != nil {
		return nil, domain.NewSessionError(op, domain.ErrConnectFailed, "subscribe: "+err.Error())
	}
	return record, nil
}

// Write encodes user text and sends it over the write characteristic. The
// command is echoed to the CLI sink only after the driver accepts the
// write; a command that did not transmit leaves no trace.
func (s *DeviceSession) Write(ctx context.Context, input string) error {
	const op = "session.write"

	s.mu.Lock()
	if s.state != StateReady || s.connected == nil {
		s.mu.Unlock()
		return domain.NewSessionError(op, domain.ErrNotConnected, "")
	}
	id := s.connected.ID
	s.mu.Unlock()

	payload := EncodeCommand(input)
	if err := s.drv.Write(ctx, id, s.cfg.ServiceUUID, s.cfg.WriteCharUUID, payload); err != nil {
		s.logger.Warn("write failed", "peripheral", id, "err", err)
		return domain.NewSessionError(op, domain.ErrWriteFailed, err.Error())
	}
	s.cli.Append("> " + input + "\n")
	return nil
}

// Disconnect ends the current connection (or cancels an in-flight
// connect). It is a no-op when nothing is connected.
func (s *DeviceSession) Disconnect() error {
	s.mu.Lock()
	if s.connecting {
		s.closeSettleLocked()
		id := s.pendingID
		s.mu.Unlock()
		return domain.WrapOp("session.disconnect", s.drv.Disconnect(id))
	}
	if s.connected == nil {
		s.mu.Unlock()
		return nil
	}
	id := s.connected.ID
	s.connected = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.demux.Flush()
	s.logger.Info("disconnected", "peripheral", id)
	return domain.WrapOp("session.disconnect", s.drv.Disconnect(id))
}

func (s *DeviceSession) handleEvent(ev domain.DriverEvent) {
	switch e := ev.(type) {
	case domain.DiscoveryEvent:
		s.handleDiscovery(e)
	case domain.ScanStoppedEvent:
		s.mu.Lock()
		if s.state == StateScanning {
			s.state = StateIdle
		}
		s.mu.Unlock()
	case domain.NotifyEvent:
		s.handleNotify(e)
	case domain.DisconnectEvent:
		s.handleDisconnect(e)
	}
}

func (s *DeviceSession) handleDiscovery(ev domain.DiscoveryEvent) {
	// Drivers already filter their scans, but re-check: a peripheral that
	// does not advertise the target service never enters the list.
	if !ev.AdvertisesService(s.cfg.ServiceUUID) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScanning {
		return
	}
	// Dedup by id, first seen wins; later RSSI/name updates are ignored.
	if _, dup := s.seen[ev.Peripheral.ID]; dup {
		return
	}
	s.seen[ev.Peripheral.ID] = struct{}{}
	s.discovered = append(s.discovered, ev.Peripheral)
	s.logger.Debug("peripheral discovered",
		"id", ev.Peripheral.ID, "name", ev.Peripheral.Name, "rssi", ev.Peripheral.RSSI)
}

// handleNotify feeds received bytes to the demux in driver delivery order.
// The event loop is the demux's only writer, so feeds are never reordered
// or run concurrently.
func (s *DeviceSession) handleNotify(ev domain.NotifyEvent) {
	s.mu.Lock()
	current := s.connected != nil && s.connected.ID == ev.ID
	pending := s.connecting && s.pendingID == ev.ID
	s.mu.Unlock()
	// Bytes may arrive between subscription and Ready; keep them.
	if !current && !pending {
		return
	}
	s.demux.FeedBytes(ev.Data)
}

func (s *DeviceSession) handleDisconnect(ev domain.DisconnectEvent) {
	s.mu.Lock()
	if s.connecting && s.pendingID == ev.ID {
		s.closeSettleLocked()
		s.mu.Unlock()
		return
	}
	if s.connected == nil || s.connected.ID != ev.ID {
		// Stale event for a peripheral that is no longer current.
		s.mu.Unlock()
		s.logger.Debug("ignoring disconnect for non-current peripheral", "id", ev.ID)
		return
	}
	s.connected = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.demux.Flush()
	s.logger.Info("peripheral disconnected", "id", ev.ID)
}

func (s *DeviceSession) lookupLocked(id string) (domain.Peripheral, bool) {
	for _, p := range s.discovered {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Peripheral{}, false
}

func (s *DeviceSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *DeviceSession) closeSettleLocked() {
	if s.settleCancel != nil && !s.cancelClosed {
		close(s.settleCancel)
		s.cancelClosed = true
	}
}

func newAttemptID() string {
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
