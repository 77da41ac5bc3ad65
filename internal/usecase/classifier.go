package usecase

import (
	"regexp"
	"strings"

	"gloveterm/internal/domain"
)

// ansiPrefixRE matches one or more back-to-back SGR escape sequences at the
// start of a line. The glove firmware color-codes log output, so a line
// often opens with a color prefix before any classifiable text.
var ansiPrefixRE = regexp.MustCompile(`^(?:\x1b\[[0-9;]*m)+`)

// logPrefixes are the five severity-letter openings of a structured log
// record.
var logPrefixes = [...]string{"E (", "W (", "I (", "D (", "V ("}

// Classify partitions one logical line into an ordered sequence of typed
// segments. An ANSI escape prefix becomes one CLI segment; structured log
// records embedded anywhere in the remainder become Log segments; all other
// text becomes CLI segments in order.
//
// The scan is an explicit cursor walk, not a global regexp match: a
// candidate severity prefix that fails the full record grammar advances the
// cursor by exactly one byte and rescans, so a false positive (prose
// containing "E (") cannot swallow the rest of the line.
func Classify(line string) []domain.LineSegment {
	if line == "" {
		return nil
	}
	var segs []domain.LineSegment

	plain := line
	if m := ansiPrefixRE.FindString(line); m != "" {
		segs = append(segs, domain.LineSegment{Text: m, Kind: domain.SegmentCLI})
		plain = line[len(m):]
	}

	cursor := 0
	for cursor < len(plain) {
		idx := nextCandidate(plain, cursor)
		if idx < 0 {
			segs = append(segs, domain.LineSegment{Text: plain[cursor:], Kind: domain.SegmentCLI})
			return segs
		}
		candidate := plain[idx:]
		if !domain.MatchesLogGrammar(candidate) {
			cursor = idx + 1
			continue
		}
		if idx > cursor {
			segs = append(segs, domain.LineSegment{Text: plain[cursor:idx], Kind: domain.SegmentCLI})
		}
		segs = append(segs, domain.LineSegment{Text: candidate, Kind: domain.SegmentLog})
		// The record grammar is anchored to the end of the line.
		cursor = len(plain)
	}
	return segs
}

// nextCandidate returns the earliest index >= from of any severity prefix,
// or -1.
func nextCandidate(plain string, from int) int {
	best := -1
	for _, p := range logPrefixes {
		idx := strings.Index(plain[from:], p)
		if idx < 0 {
			continue
		}
		idx += from
		if best < 0 || idx < best {
			best = idx
		}
	}
	return best
}
