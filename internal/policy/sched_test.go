package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_DeadlineOrder(t *testing.T) {
	s := newSchedule()
	s.push(&timer{deadline: 300, kind: timerEmission, node: 1})
	s.push(&timer{deadline: 100, kind: timerEmission, node: 2})
	s.push(&timer{deadline: 200, kind: timerEmission, node: 3})

	var order []int
	for {
		tm, ok := s.pop()
		if !ok {
			break
		}
		order = append(order, tm.node)
	}
	assert.Equal(t, []int{2, 3, 1}, order)
}

func TestSchedule_EqualDeadlinesFIFO(t *testing.T) {
	s := newSchedule()
	for i := 0; i < 5; i++ {
		s.push(&timer{deadline: 100, kind: timerEmission, node: i})
	}
	for i := 0; i < 5; i++ {
		tm, ok := s.pop()
		require.True(t, ok)
		assert.Equal(t, i, tm.node, "ties break by insertion order")
	}
}

func TestSchedule_CancelledTimersSkipped(t *testing.T) {
	s := newSchedule()
	first := s.push(&timer{deadline: 100, kind: timerStart, node: 1})
	s.push(&timer{deadline: 200, kind: timerStop, node: 2})
	first.cancelled = true

	tm, ok := s.peek()
	require.True(t, ok)
	assert.Equal(t, 2, tm.node)

	tm, ok = s.pop()
	require.True(t, ok)
	assert.Equal(t, 2, tm.node)

	_, ok = s.pop()
	assert.False(t, ok)
}

func TestSchedule_CancelEmissionsByOwner(t *testing.T) {
	s := newSchedule()
	s.push(&timer{deadline: 100, kind: timerEmission, node: 7})
	s.push(&timer{deadline: 200, kind: timerEmission, node: 8})
	s.push(&timer{deadline: 300, kind: timerEmission, node: 7})

	s.cancelEmissions(7)
	s.cancelEmissions(7) // idempotent

	tm, ok := s.pop()
	require.True(t, ok)
	assert.Equal(t, 8, tm.node)
	_, ok = s.pop()
	assert.False(t, ok)
}

func TestSchedule_PeekEmpty(t *testing.T) {
	s := newSchedule()
	_, ok := s.peek()
	assert.False(t, ok)
}
