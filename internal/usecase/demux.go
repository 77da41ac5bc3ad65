package usecase

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"gloveterm/internal/domain"
)

// DefaultSuppressedTags are telemetry tags considered too noisy for the
// general monitor view. Their records stream many times per second while
// the motion pipeline runs.
var DefaultSuppressedTags = []string{"FUSION", "MOTION", "FLEX"}

// Demux routes raw stream fragments to the CLI and monitor sinks. It owns
// the line splitter and pending buffer, runs the classifier over every
// complete (or force-flushed) line, and applies the tag suppression policy.
//
// Log segments never reach the CLI sink, whatever their tag: interactive
// output and the telemetry feed are strictly disjoint channels. This is a
// deliberate design choice of the firmware console, not a filter option.
//
// Demux is not safe for concurrent Feed calls; the device session is its
// single owner and feeds it in driver delivery order.
type Demux struct {
	splitter   *LineSplitter
	cli        *Sink
	monitor    *Sink
	suppressed map[string]struct{}
	telemetry  *TelemetryState // optional
	logger     *slog.Logger
}

// DemuxOptions configures a Demux.
type DemuxOptions struct {
	CLI            *Sink
	Monitor        *Sink
	PendingLimit   int
	SuppressedTags []string // nil means DefaultSuppressedTags
	Telemetry      *TelemetryState
	Logger         *slog.Logger
}

// NewDemux creates a demultiplexer writing to the two sinks.
func NewDemux(opts DemuxOptions) *Demux {
	tags := opts.SuppressedTags
	if tags == nil {
		tags = DefaultSuppressedTags
	}
	suppressed := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		suppressed[domain.NormalizeTag(t)] = struct{}{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Demux{
		splitter:   NewLineSplitter(opts.PendingLimit),
		cli:        opts.CLI,
		monitor:    opts.Monitor,
		suppressed: suppressed,
		telemetry:  opts.Telemetry,
		logger:     logger,
	}
}

// Feed runs one raw fragment through splitting, classification and routing.
func (d *Demux) Feed(fragment string) {
	for _, line := range d.splitter.Feed(fragment) {
		if line.Forced {
			d.logger.Debug("pending buffer exceeded ceiling, forced flush",
				"len", len(line.Text))
		}
		d.dispatch(line.Text)
	}
}

// FeedBytes decodes a notification payload and feeds it.
func (d *Demux) FeedBytes(data []byte) {
	d.Feed(string(data))
}

// Flush force-classifies any pending unterminated tail, e.g. at disconnect.
func (d *Demux) Flush() {
	if line, ok := d.splitter.Flush(); ok {
		d.dispatch(line.Text)
	}
}

// dispatch classifies one line and routes its segments. All CLI text of the
// line is collected into a single sink entry, so CLI sink entries stay
// line-granular and the console can render one entry per display line.
func (d *Demux) dispatch(line string) {
	if line == "" {
		return
	}
	if d.telemetry != nil {
		d.telemetry.IngestLine(line)
	}
	var cli strings.Builder
	for _, seg := range Classify(line) {
		if seg.Text == "" {
			continue
		}
		switch seg.Kind {
		case domain.SegmentLog:
			d.routeLog(seg.Text, &cli)
		default:
			cli.WriteString(seg.Text)
		}
	}
	if cli.Len() > 0 {
		d.cli.Append(cli.String())
	}
}

// routeLog re-matches the record grammar on an ANSI-stripped copy for tag
// extraction and appends the original, un-stripped text to the monitor sink
// unless the tag is suppressed.
func (d *Demux) routeLog(text string, cli *strings.Builder) {
	plain := ansi.Strip(text)
	rec, ok := domain.ParseLogRecord(plain)
	if !ok {
		// Should not happen given the classifier's matching discipline;
		// surface the text rather than dropping it silently.
		cli.WriteString(text)
		return
	}
	if _, drop := d.suppressed[rec.NormalizedTag()]; drop {
		return
	}
	d.monitor.Append(text + "\n")
}
