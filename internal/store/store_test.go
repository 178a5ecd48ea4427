package store

import (
	"testing"

	"github.com/ppriyankuu/dynamosim/internal/vclock"
	"github.com/stretchr/testify/assert"
)

func TestGet_AbsentKeyReturnsFalseNotError(t *testing.T) {
	s := New()
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	s := New()
	clock := vclock.New().Increment("A")
	s.Put("k", "v", clock)

	e, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", e.Value)
	assert.True(t, e.Clock.Equal(clock))
}

func TestPutOverwrites(t *testing.T) {
	s := New()
	s.Put("k", "v1", vclock.New())
	s.Put("k", "v2", vclock.New())

	e, _ := s.Get("k")
	assert.Equal(t, "v2", e.Value)
}

func TestKeysAndContents(t *testing.T) {
	s := New()
	s.Put("b", "2", vclock.New())
	s.Put("a", "1", vclock.New())

	assert.ElementsMatch(t, []string{"a", "b"}, s.Keys())
	assert.Equal(t, []string{"a:1", "b:2"}, s.Contents())
}

func TestFingerprint_SameContentsSameDigest(t *testing.T) {
	s1, s2 := New(), New()
	s1.Put("a", "1", vclock.New())
	s2.Put("a", "1", vclock.New())
	assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())

	s2.Put("b", "2", vclock.New())
	assert.NotEqual(t, s1.Fingerprint(), s2.Fingerprint())
}

func TestFingerprint_EmptyStoreIsStable(t *testing.T) {
	s1, s2 := New(), New()
	assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())
}
