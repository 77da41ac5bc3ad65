package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkAppendAndLines(t *testing.T) {
	s := NewSink(3)
	s.Append("a")
	s.Append("b")
	assert.Equal(t, []string{"a", "b"}, s.Lines())
	assert.Equal(t, 2, s.Len())
}

func TestSinkEvictsOldest(t *testing.T) {
	s := NewSink(3)
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		s.Append(v)
	}
	assert.Equal(t, []string{"c", "d", "e"}, s.Lines())
	assert.Equal(t, 3, s.Len())
}

func TestSinkCapacityBound(t *testing.T) {
	s := NewSink(1000)
	for i := 0; i < 1001; i++ {
		s.Append(fmt.Sprintf("line %d", i))
	}
	lines := s.Lines()
	require.Len(t, lines, 1000)
	assert.Equal(t, "line 1", lines[0])
	assert.Equal(t, "line 1000", lines[999])
}

func TestSinkDefaultCapacity(t *testing.T) {
	s := NewSink(0)
	for i := 0; i < DefaultSinkCapacity+10; i++ {
		s.Append("x")
	}
	assert.Equal(t, DefaultSinkCapacity, s.Len())
}

func TestSinkClear(t *testing.T) {
	s := NewSink(4)
	s.Append("a")
	s.Append("b")
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Lines())

	s.Append("c")
	assert.Equal(t, []string{"c"}, s.Lines())
}

func TestSinkLinesIsSnapshot(t *testing.T) {
	s := NewSink(4)
	s.Append("a")
	snap := s.Lines()
	s.Append("b")
	assert.Equal(t, []string{"a"}, snap)
}
