package vclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_Sequential(t *testing.T) {
	c := New()
	c, err := c.Update("X", 1)
	require.NoError(t, err)
	c, err = c.Update("X", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c["X"])
}

func TestUpdate_RegressionRaises(t *testing.T) {
	c := New()
	c, err := c.Update("X", 2)
	require.NoError(t, err)

	_, err = c.Update("X", 2)
	assert.ErrorIs(t, err, ErrRegression)

	_, err = c.Update("X", 1)
	assert.ErrorIs(t, err, ErrRegression)
}

func TestEquality(t *testing.T) {
	a := Clock{"X": 1, "Y": 2}
	b := Clock{"Y": 2, "X": 1}
	c := Clock{"X": 1, "Y": 3}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestOrder(t *testing.T) {
	a := Clock{"X": 1}
	b := Clock{"X": 1, "Y": 1}
	c := Clock{"X": 2}

	assert.True(t, a.Less(b))
	assert.True(t, a.LessOrEqual(b))
	assert.False(t, b.Less(a))

	assert.Equal(t, Before, Compare(a, b))
	assert.Equal(t, After, Compare(b, a))
	assert.Equal(t, Equal, Compare(a, a))
	assert.Equal(t, Before, Compare(a, c))
}

func TestCoalesce_IdenticalClocksReduceToOne(t *testing.T) {
	a := Clock{"X": 1}
	result := Coalesce([]Clock{a.Copy(), a.Copy(), a.Copy()})
	assert.Len(t, result, 1)
}

func TestCoalesce_DivergingUpdatesProduceAntichain(t *testing.T) {
	base := Clock{"X": 1, "Y": 1}
	left := base.Increment("X")  // {X:2,Y:1}
	right := base.Increment("Y") // {X:1,Y:2}

	result := Coalesce([]Clock{base, left, right, left.Copy()})
	assert.Len(t, result, 2)

	// Order shouldn't matter.
	shuffled := Coalesce([]Clock{right, left, base, right.Copy()})
	assert.Len(t, shuffled, 2)
}

func TestConverge(t *testing.T) {
	left := Clock{"X": 2, "Y": 1}
	right := Clock{"X": 1, "Y": 2}

	merged := Converge([]Clock{left, right})
	assert.Equal(t, Clock{"X": 2, "Y": 2}, merged)

	// Converge is invariant under a prior Coalesce.
	coalesced := Coalesce([]Clock{left, right})
	assert.Equal(t, merged, Converge(coalesced))
}

func TestBounded_EvictsSmallestOnOverflow(t *testing.T) {
	b := NewBounded(2)
	require.NoError(t, b.Update("X", 1))
	require.NoError(t, b.Update("Y", 5))
	require.NoError(t, b.Update("Z", 1))

	assert.Len(t, b.Clock(), 2)
	assert.Contains(t, b.Clock(), "Y") // highest counter, should survive
}
