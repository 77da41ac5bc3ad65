package domain

// SegmentKind distinguishes interactive console text from structured log
// records within one logical line.
type SegmentKind int

const (
	// SegmentCLI is interactive command/response text, routed to the CLI
	// console verbatim (ANSI codes preserved).
	SegmentCLI SegmentKind = iota
	// SegmentLog is a structured log record, routed to the monitor feed
	// subject to tag suppression. Log segments never reach the CLI console.
	SegmentLog
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentCLI:
		return "cli"
	case SegmentLog:
		return "log"
	default:
		return "unknown"
	}
}

// LineSegment is one typed slice of a logical line. A single line may
// decompose into several segments when a log record appears embedded
// mid-line behind stray control sequences.
type LineSegment struct {
	Text string
	Kind SegmentKind
}
