package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
		want LogRecord
		ok   bool
	}{
		{
			name: "info record",
			line: "I (102) WIFI: connected",
			want: LogRecord{Severity: SeverityInfo, Seq: 102, Tag: "WIFI", Message: "connected"},
			ok:   true,
		},
		{
			name: "error record with spaces in tag",
			line: "E (33) BLE GAP: adv failed",
			want: LogRecord{Severity: SeverityError, Seq: 33, Tag: "BLE GAP", Message: "adv failed"},
			ok:   true,
		},
		{
			name: "empty message",
			line: "V (0) HEAP: ",
			want: LogRecord{Severity: SeverityVerbose, Seq: 0, Tag: "HEAP", Message: ""},
			ok:   true,
		},
		{name: "no parens", line: "I 102 WIFI: connected", ok: false},
		{name: "colon directly inside tag", line: "I (102) WI:FI connected", ok: false},
		{name: "prose false positive", line: "the grade was an E (not good)", ok: false},
		{name: "missing colon", line: "I (102) WIFI connected", ok: false},
		{name: "lowercase severity", line: "i (102) WIFI: connected", ok: false},
		{name: "empty line", line: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLogRecord(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.ok, MatchesLogGrammar(tt.line))
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "FUSION", NormalizeTag(" fusion "))
	assert.Equal(t, "WIFI", NormalizeTag("WiFi"))

	rec, ok := ParseLogRecord("I (5) fusion : x=1")
	require.True(t, ok)
	assert.Equal(t, "FUSION", rec.NormalizedTag())
}

func TestAdvertisesService(t *testing.T) {
	ev := DiscoveryEvent{
		Peripheral:         Peripheral{ID: "aa:bb"},
		AdvertisedServices: []string{"6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
	}
	assert.True(t, ev.AdvertisesService(NUSServiceUUID), "compare must be case-insensitive")
	assert.False(t, ev.AdvertisesService("180F"))
}

func TestErrorCodeOf(t *testing.T) {
	err := NewSessionError("session.connect", ErrConnectFailed, "subscribe step")
	assert.Equal(t, CodeConnectFailed, ErrorCodeOf(err))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeWriteFailed, ErrorCodeOf(WrapOp("session.write", ErrWriteFailed)))
}
