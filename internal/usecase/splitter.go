package usecase

import "strings"

// DefaultPendingLimit is the ceiling on unterminated buffered text. A
// peripheral that streams without line terminators would otherwise grow the
// pending buffer without bound.
const DefaultPendingLimit = 4096

// Line is one logical line produced by the splitter. Forced marks a line
// that was emitted because the pending buffer exceeded its ceiling rather
// than because the source terminated it; it still goes through
// classification like any other line.
type Line struct {
	Text   string
	Forced bool
}

// LineSplitter incrementally reassembles an arbitrary text stream into
// complete logical lines. It tolerates \n, \r and \r\n terminators,
// including terminators straddling chunk boundaries. State persists across
// Feed calls; the splitter is not safe for concurrent use and is owned by
// the demultiplexer.
type LineSplitter struct {
	pending strings.Builder
	limit   int
}

// NewLineSplitter creates a splitter with the given pending-buffer ceiling.
// Non-positive limits fall back to DefaultPendingLimit.
func NewLineSplitter(limit int) *LineSplitter {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return &LineSplitter{limit: limit}
}

// Feed appends the fragment and returns the complete lines it released.
// Terminator-only and empty lines are dropped silently. If the remaining
// unterminated text exceeds the ceiling it is returned once as a forced
// line and the buffer resets.
func (s *LineSplitter) Feed(fragment string) []Line {
	if fragment == "" {
		return nil
	}
	s.pending.WriteString(fragment)
	buf := s.pending.String()
	s.pending.Reset()

	var lines []Line
	for {
		idx := nextTerminator(buf)
		if idx < 0 {
			break
		}
		consume := idx + 1
		if buf[idx] == '\r' && consume < len(buf) && buf[consume] == '\n' {
			consume++
		}
		if idx > 0 {
			lines = append(lines, Line{Text: buf[:idx]})
		}
		buf = buf[consume:]
	}

	if len(buf) > s.limit {
		lines = append(lines, Line{Text: buf, Forced: true})
		buf = ""
	}
	s.pending.WriteString(buf)
	return lines
}

// Flush force-emits any pending tail, e.g. at disconnect. Reports false
// when nothing was pending.
func (s *LineSplitter) Flush() (Line, bool) {
	if s.pending.Len() == 0 {
		return Line{}, false
	}
	line := Line{Text: s.pending.String(), Forced: true}
	s.pending.Reset()
	return line, true
}

// Pending returns the size of the not-yet-terminated buffer.
func (s *LineSplitter) Pending() int {
	return s.pending.Len()
}

func nextTerminator(buf string) int {
	nl := strings.IndexByte(buf, '\n')
	cr := strings.IndexByte(buf, '\r')
	switch {
	case nl < 0:
		return cr
	case cr < 0:
		return nl
	case cr < nl:
		return cr
	default:
		return nl
	}
}
