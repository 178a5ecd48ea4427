package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindNodes_EmptyRing(t *testing.T) {
	r := New(4)
	primary, avoided := r.FindNodes("k", 3, nil)
	assert.Nil(t, primary)
	assert.Nil(t, avoided)
}

func TestFindNodes_ReturnsDistinctNodesUpToCount(t *testing.T) {
	r := New(8)
	for _, n := range []string{"A", "B", "C", "D", "E", "F"} {
		r.AddNode(n)
	}

	primary, avoided := r.FindNodes("some-key", 3, nil)
	require.Len(t, primary, 3)
	assert.Empty(t, avoided)

	seen := make(map[string]bool)
	for _, n := range primary {
		assert.False(t, seen[n], "FindNodes returned duplicate node %q", n)
		seen[n] = true
	}
}

func TestFindNodes_IsDeterministic(t *testing.T) {
	build := func() *Ring {
		r := New(8)
		for _, n := range []string{"A", "B", "C", "D", "E", "F"} {
			r.AddNode(n)
		}
		return r
	}

	r1, r2 := build(), build()
	p1, a1 := r1.FindNodes("widget", 3, nil)
	p2, a2 := r2.FindNodes("widget", 3, nil)
	assert.Equal(t, p1, p2)
	assert.Equal(t, a1, a2)
}

func TestFindNodes_AvoidsNamedNodesButRecordsThem(t *testing.T) {
	r := New(8)
	for _, n := range []string{"A", "B", "C", "D", "E", "F"} {
		r.AddNode(n)
	}

	full, _ := r.FindNodes("widget", 6, nil)
	require.Len(t, full, 6)

	avoidSet := map[string]bool{full[0]: true}
	primary, avoided := r.FindNodes("widget", 3, avoidSet)
	assert.Len(t, primary, 3)
	assert.NotContains(t, primary, full[0])
	assert.Contains(t, avoided, full[0])
}

func TestFindNodes_WalkStopsAfterOneRevolution(t *testing.T) {
	r := New(4)
	r.AddNode("A")

	avoid := map[string]bool{"A": true}
	primary, avoided := r.FindNodes("widget", 3, avoid)
	assert.Empty(t, primary)
	assert.Equal(t, []string{"A"}, avoided)
}

func TestRemoveNode(t *testing.T) {
	r := New(8)
	r.AddNode("A")
	r.AddNode("B")
	r.RemoveNode("A")

	primary, _ := r.FindNodes("anything", 2, nil)
	assert.NotContains(t, primary, "A")
	assert.Contains(t, primary, "B")
}
