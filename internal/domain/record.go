package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Severity is the single-letter level prefix of a structured log record.
type Severity byte

const (
	SeverityError   Severity = 'E'
	SeverityWarn    Severity = 'W'
	SeverityInfo    Severity = 'I'
	SeverityDebug   Severity = 'D'
	SeverityVerbose Severity = 'V'
)

func (s Severity) String() string { return string(byte(s)) }

// logLineRE is the wire grammar of a structured log record:
// "<severity> (<digits>) <tag-without-colon>: <message>", anchored to the
// whole candidate.
var logLineRE = regexp.MustCompile(`^([EWIDV]) \((\d+)\) ([^:]+): (.*)$`)

// LogRecord is a parsed structured log line. It is derived on demand for
// suppression routing and never stored.
type LogRecord struct {
	Severity Severity
	Seq      int
	Tag      string
	Message  string
}

// NormalizedTag returns the tag uppercased and trimmed, the form used for
// suppression comparison.
func (r LogRecord) NormalizedTag() string {
	return NormalizeTag(r.Tag)
}

// NormalizeTag uppercases and trims a tag for case-insensitive comparison.
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

// ParseLogRecord parses line against the record grammar. It reports false
// when the line is not a structured log record.
func ParseLogRecord(line string) (LogRecord, bool) {
	m := logLineRE.FindStringSubmatch(line)
	if m == nil {
		return LogRecord{}, false
	}
	// Sequence numbers larger than an int are not produced by the firmware;
	// treat overflow as zero rather than rejecting the record.
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		seq = 0
	}
	return LogRecord{
		Severity: Severity(m[1][0]),
		Seq:      seq,
		Tag:      m[3],
		Message:  m[4],
	}, true
}

// MatchesLogGrammar reports whether the candidate matches the full record
// grammar without allocating a LogRecord.
func MatchesLogGrammar(candidate string) bool {
	return logLineRE.MatchString(candidate)
}
