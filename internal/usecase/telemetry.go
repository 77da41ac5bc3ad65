package usecase

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Telemetry line patterns emitted by the glove firmware inside its log
// records and free-form console output.
var (
	fusionQuatRE = regexp.MustCompile(`FUSION\s+q:\[([^\]]+)\]`)
	sflpQuatRE   = regexp.MustCompile(`SFLP\s+q:\[([^\]]+)\]`)
	positionRE   = regexp.MustCompile(`POS\s*:\[([^\]]+)\]`)
	magRE        = regexp.MustCompile(`M:\[([^\]]+)\]`)
	flexRE       = regexp.MustCompile(`(?i)FLEX:\s*Flex value changed:\s*(\d+)\s*->\s*(\d+)\s*\(raw median:\s*(\d+),\s*MIDI:\s*(\d+)\)`)
	battRE       = regexp.MustCompile(`BATT:\s*([0-9.]+)\s*%\s*([0-9.]+)\s*V`)
	rssiRE       = regexp.MustCompile(`(?i)RSSI[:=]\s*(-?\d+)\s*dBm`)
	punchRE      = regexp.MustCompile(`(?i)Punch detected:\s*([0-9.+-]+)\s*m/s\s*hv=([0-9.+-]+)\s*deg\s*vv=([0-9.+-]+)\s*deg`)
)

// Quaternion is a unit orientation quaternion in w,x,y,z order.
type Quaternion [4]float64

// Vec3 is a 3-component vector (position in meters, field in µT).
type Vec3 [3]float64

// Punch is one detected punch gesture.
type Punch struct {
	Velocity   float64 // m/s
	Horizontal float64 // deg
	Vertical   float64 // deg
}

// Flex is the latest flex-sensor reading.
type Flex struct {
	Value     int
	RawMedian int
	MIDI      int
}

// TelemetrySnapshot is an immutable copy of the latest telemetry values.
// Pointer fields are nil until the corresponding value has been seen.
type TelemetrySnapshot struct {
	Fusion     *Quaternion
	SFLP       *Quaternion
	Position   *Vec3
	PositionAt time.Time
	Mag        *Vec3
	MagAt      time.Time
	Punch      *Punch
	PunchAt    time.Time
	Flex       *Flex
	FlexAt     time.Time
	BatteryPct float64
	VoltageV   float64
	HasBattery bool
	RSSIdBm    int
	HasRSSI    bool
	UpdatedAt  time.Time
}

// Orientation returns the preferred orientation source: the fusion
// quaternion when present, otherwise the SFLP one. The second return names
// the source ("fusion", "sflp" or "").
func (s TelemetrySnapshot) Orientation() (*Quaternion, string) {
	if s.Fusion != nil {
		return s.Fusion, "fusion"
	}
	if s.SFLP != nil {
		return s.SFLP, "sflp"
	}
	return nil, ""
}

// TelemetryState accumulates the latest telemetry parsed out of every
// complete console line. Safe for concurrent use: the session event loop
// ingests while the console snapshots.
type TelemetryState struct {
	mu   sync.Mutex
	snap TelemetrySnapshot
	now  func() time.Time
}

// NewTelemetryState creates an empty telemetry accumulator.
func NewTelemetryState() *TelemetryState {
	return &TelemetryState{now: time.Now}
}

// Snapshot returns a copy of the current telemetry.
func (t *TelemetryState) Snapshot() TelemetrySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// IngestLine scans one complete line for telemetry updates. Lines without
// telemetry still bump UpdatedAt, which the console uses as a liveness
// signal.
func (t *TelemetryState) IngestLine(line string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.UpdatedAt = now

	if m := fusionQuatRE.FindStringSubmatch(line); m != nil {
		if q, ok := parseQuat(m[1]); ok {
			t.snap.Fusion = &q
		}
	}
	if m := sflpQuatRE.FindStringSubmatch(line); m != nil {
		if q, ok := parseQuat(m[1]); ok {
			t.snap.SFLP = &q
		}
	}
	if m := positionRE.FindStringSubmatch(line); m != nil {
		if v, ok := parseVec3(m[1]); ok {
			t.snap.Position = &v
			t.snap.PositionAt = now
		}
	}
	if m := magRE.FindStringSubmatch(line); m != nil {
		if v, ok := parseVec3(m[1]); ok {
			t.snap.Mag = &v
			t.snap.MagAt = now
		}
	}
	if m := flexRE.FindStringSubmatch(line); m != nil {
		value, err1 := strconv.Atoi(m[2])
		raw, err2 := strconv.Atoi(m[3])
		midi, err3 := strconv.Atoi(m[4])
		if err1 == nil && err2 == nil && err3 == nil {
			t.snap.Flex = &Flex{Value: value, RawMedian: raw, MIDI: midi}
			t.snap.FlexAt = now
		}
	}
	if m := battRE.FindStringSubmatch(line); m != nil {
		pct, err1 := strconv.ParseFloat(m[1], 64)
		volt, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			t.snap.BatteryPct = pct
			t.snap.VoltageV = volt
			t.snap.HasBattery = true
		}
	}
	if m := rssiRE.FindStringSubmatch(line); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			t.snap.RSSIdBm = v
			t.snap.HasRSSI = true
		}
	}
	if m := punchRE.FindStringSubmatch(line); m != nil {
		vel, err1 := strconv.ParseFloat(m[1], 64)
		hv, err2 := strconv.ParseFloat(m[2], 64)
		vv, err3 := strconv.ParseFloat(m[3], 64)
		if err1 == nil && err2 == nil && err3 == nil && finite(vel, hv, vv) {
			t.snap.Punch = &Punch{Velocity: vel, Horizontal: hv, Vertical: vv}
			t.snap.PunchAt = now
		}
	}
}

// parseQuat parses "w,x,y,z" and normalizes it. Zero or non-finite
// quaternions are rejected.
func parseQuat(s string) (Quaternion, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Quaternion{}, false
	}
	var q Quaternion
	var norm float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Quaternion{}, false
		}
		q[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return Quaternion{}, false
	}
	for i := range q {
		q[i] /= norm
	}
	return q, true
}

func parseVec3(s string) (Vec3, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Vec3{}, false
	}
	var v Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Vec3{}, false
		}
		v[i] = f
	}
	return v, true
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
