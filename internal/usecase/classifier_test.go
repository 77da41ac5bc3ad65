package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gloveterm/internal/domain"
)

func TestClassifyPlainProse(t *testing.T) {
	segs := Classify("hello world")
	require.Len(t, segs, 1)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
	assert.Equal(t, "hello world", segs[0].Text)
}

func TestClassifyPureLogRecord(t *testing.T) {
	segs := Classify("I (1234) WIFI: connected")
	require.Len(t, segs, 1)
	assert.Equal(t, domain.SegmentLog, segs[0].Kind)
	assert.Equal(t, "I (1234) WIFI: connected", segs[0].Text)
}

func TestClassifyANSIPrefix(t *testing.T) {
	line := "\x1b[0;32mI (99) BATT: 85% 3.9V"
	segs := Classify(line)
	require.Len(t, segs, 2)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
	assert.Equal(t, "\x1b[0;32m", segs[0].Text)
	assert.Equal(t, domain.SegmentLog, segs[1].Kind)
	assert.Equal(t, "I (99) BATT: 85% 3.9V", segs[1].Text)
}

func TestClassifyStackedANSIPrefix(t *testing.T) {
	line := "\x1b[1m\x1b[31mprompt> "
	segs := Classify(line)
	require.Len(t, segs, 2)
	assert.Equal(t, "\x1b[1m\x1b[31m", segs[0].Text)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
	assert.Equal(t, "prompt> ", segs[1].Text)
	assert.Equal(t, domain.SegmentCLI, segs[1].Kind)
}

func TestClassifyEmbeddedRecord(t *testing.T) {
	segs := Classify("ok> W (55) MOTION: drift high")
	require.Len(t, segs, 2)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
	assert.Equal(t, "ok> ", segs[0].Text)
	assert.Equal(t, domain.SegmentLog, segs[1].Kind)
	assert.Equal(t, "W (55) MOTION: drift high", segs[1].Text)
}

// A severity-letter opening that fails the record grammar must not swallow
// the rest of the line; the scan advances one byte past the candidate and
// continues. Text between the emission point and that byte is not
// re-emitted, matching the single-cursor scan this console has always used.
func TestClassifyFalseCandidateAdvancesOneByte(t *testing.T) {
	segs := Classify("grade E (not numeric) here")
	require.Len(t, segs, 1)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
	assert.Equal(t, " (not numeric) here", segs[0].Text)
}

func TestClassifyFalseCandidateThenRealRecord(t *testing.T) {
	segs := Classify("E (x) no, but I (7) GPIO: pin set")
	require.Len(t, segs, 2)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
	assert.Equal(t, " (x) no, but ", segs[0].Text)
	assert.Equal(t, domain.SegmentLog, segs[1].Kind)
	assert.Equal(t, "I (7) GPIO: pin set", segs[1].Text)
}

func TestClassifyEmptyLine(t *testing.T) {
	assert.Nil(t, Classify(""))
}

func TestClassifySeverityLetters(t *testing.T) {
	for _, sev := range []string{"E", "W", "I", "D", "V"} {
		line := sev + " (10) CORE: msg"
		segs := Classify(line)
		require.Len(t, segs, 1, "severity %s", sev)
		assert.Equal(t, domain.SegmentLog, segs[0].Kind, "severity %s", sev)
	}
	// Lowercase severities are not records.
	segs := Classify("e (10) CORE: msg")
	require.Len(t, segs, 1)
	assert.Equal(t, domain.SegmentCLI, segs[0].Kind)
}
