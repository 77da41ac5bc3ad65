package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(lines []Line) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestSplitterBasicTerminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newline", "hello\n", []string{"hello"}},
		{"carriage return", "hello\r", []string{"hello"}},
		{"crlf", "hello\r\n", []string{"hello"}},
		{"mixed", "a\nb\rc\r\nd\n", []string{"a", "b", "c", "d"}},
		{"terminator only", "\n", nil},
		{"crlf only", "\r\n", nil},
		{"blank lines dropped", "a\n\n\nb\n", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLineSplitter(0)
			assert.Equal(t, tt.want, texts(s.Feed(tt.input)))
			assert.Equal(t, 0, s.Pending())
		})
	}
}

func TestSplitterHoldsUnterminatedTail(t *testing.T) {
	s := NewLineSplitter(0)
	assert.Empty(t, s.Feed("par"))
	assert.Equal(t, 3, s.Pending())
	assert.Equal(t, []string{"partial"}, texts(s.Feed("tial\nnext")))
	assert.Equal(t, 4, s.Pending())
}

func TestSplitterCRLFStraddlesChunks(t *testing.T) {
	s := NewLineSplitter(0)
	lines := s.Feed("one\r")
	require.Equal(t, []string{"one"}, texts(lines))
	// The \n half of a split \r\n must not become a phantom empty line.
	assert.Empty(t, s.Feed("\ntwo"))
	assert.Equal(t, []string{"two"}, texts(s.Feed("\n")))
}

func TestSplitterChunkingEquivalence(t *testing.T) {
	stream := "I (1) A: x\r\nhello world\rE (2) B: y\npartial"
	whole := NewLineSplitter(0)
	var wantLines []string
	wantLines = append(wantLines, texts(whole.Feed(stream))...)

	for _, size := range []int{1, 2, 3, 7} {
		s := NewLineSplitter(0)
		var got []string
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			got = append(got, texts(s.Feed(stream[i:end]))...)
		}
		assert.Equal(t, wantLines, got, "chunk size %d", size)
		assert.Equal(t, whole.Pending(), s.Pending(), "chunk size %d", size)
	}
}

func TestSplitterCeilingForcesFlush(t *testing.T) {
	s := NewLineSplitter(8)
	long := strings.Repeat("x", 9)
	lines := s.Feed(long)
	require.Len(t, lines, 1)
	assert.Equal(t, long, lines[0].Text)
	assert.True(t, lines[0].Forced)
	assert.Equal(t, 0, s.Pending())

	// Under the ceiling nothing is forced.
	assert.Empty(t, s.Feed("short"))
	assert.Equal(t, 5, s.Pending())
}

func TestSplitterFlush(t *testing.T) {
	s := NewLineSplitter(0)
	_, ok := s.Flush()
	assert.False(t, ok)

	s.Feed("tail")
	line, ok := s.Flush()
	require.True(t, ok)
	assert.Equal(t, "tail", line.Text)
	assert.True(t, line.Forced)
	assert.Equal(t, 0, s.Pending())
}
