// Package store is the local per-node storage engine: an in-memory
// key→(value, vector clock) map with a content fingerprint. The simulator
// never persists anything, so there is no WAL, snapshot, or tombstone
// machinery; a node's data disappears with the node.
package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ppriyankuu/dynamosim/internal/vclock"
)

// Entry is one stored record: a value and the vector clock describing which
// writes it reflects.
type Entry struct {
	Value string
	Clock vclock.Clock
}

// Store is a single node's local key-value map. It is not safe for
// concurrent use — the simulator is single-threaded.
type Store struct {
	data map[string]Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]Entry)}
}

// Put stores value and clock under key, overwriting whatever was there.
// Conflict resolution across replicas happens one level up, in the
// coordinator; a single node's local store always holds exactly the most
// recent write it was told about.
func (s *Store) Put(key, value string, clock vclock.Clock) {
	s.data[key] = Entry{Value: value, Clock: clock}
}

// Get returns the stored entry for key. If key is absent, it returns a zero
// Entry and false — callers must still be able to reply to a get for a
// never-written key, so absence is not an error.
func (s *Store) Get(key string) (Entry, bool) {
	e, ok := s.data[key]
	return e, ok
}

// Keys returns every stored key, in unspecified order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Contents returns "key:value" for every stored key, sorted by key — used
// by the ladder diagram's trailing state dump and by tests asserting on a
// node's final data without reaching into private fields.
func (s *Store) Contents() []string {
	keys := s.Keys()
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%s:%s", k, s.data[k].Value)
	}
	return out
}

// Fingerprint returns an MD5 digest over the store's sorted "key:value"
// contents — a cheap way to tell whether two nodes' stores have diverged,
// without building a full Merkle tree.
func (s *Store) Fingerprint() string {
	sum := md5.Sum([]byte(strings.Join(s.Contents(), "\n")))
	return hex.EncodeToString(sum[:])
}
