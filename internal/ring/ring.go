// Package ring implements consistent hashing over a ring of virtual nodes.
//
// Big idea:
//
// In a replicated key-value store we must decide, for every key:
//
//	"Which nodes hold a copy of this key, in what order?"
//
// Hashing straight to a node index (hash(key) % N) fails badly when nodes
// come and go: almost every key remaps. Consistent hashing places both nodes
// and keys on a circle of hash values; a key belongs to the first node
// encountered walking clockwise from its own position. Adding or removing a
// node only reshuffles the keys adjacent to it on the circle.
//
// Each physical node is given T "virtual node" positions on the ring (the
// vnodes argument to New) so that ownership is spread evenly rather than concentrated behind
// a single point per node.
package ring

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"slices"
	"sort"
)

// DefaultVirtualNodes is the number of ring positions created per physical
// node when none is specified.
const DefaultVirtualNodes = 10

// Token is a position on the ring: the unsigned big-endian interpretation of
// an MD5 digest. MD5 is used purely for its distribution properties, not for
// any cryptographic guarantee.
type Token = big.Int

// entry is one virtual node's placement on the ring.
type entry struct {
	token Token
	node  string
}

// Ring is a consistent-hash ring of virtual node tokens. It is not safe for
// concurrent use — the simulator is single-threaded, so Ring carries no
// lock.
type Ring struct {
	vnodes  int
	entries []entry // sorted by token, ties broken by insertion order (stable sort)
}

// New creates an empty ring with vnodes virtual positions per physical node.
// vnodes <= 0 falls back to DefaultVirtualNodes.
func New(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	return &Ring{vnodes: vnodes}
}

// hashToken returns the ring position for s: the MD5 digest of s, read as an
// unsigned big-endian integer.
func hashToken(s string) Token {
	sum := md5.Sum([]byte(s))
	var t big.Int
	t.SetBytes(sum[:])
	return t
}

// AddNode places vnodes virtual positions for node on the ring.
func (r *Ring) AddNode(node string) {
	for i := 0; i < r.vnodes; i++ {
		tok := hashToken(fmt.Sprintf("%s:%d", node, i))
		r.entries = append(r.entries, entry{token: tok, node: node})
	}
	r.resort()
}

// RemoveNode deletes every virtual position belonging to node.
func (r *Ring) RemoveNode(node string) {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.node != node {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// resort stably sorts entries by token, preserving insertion order among
// equal tokens (a vanishingly rare MD5 collision, but the stability keeps
// the walk deterministic).
func (r *Ring) resort() {
	slices.SortStableFunc(r.entries, func(a, b entry) int {
		return a.token.Cmp(&b.token)
	})
}

// bisectRight returns the index of the first entry whose token is strictly
// greater than tok — the "insert to the right of equal elements" bisection
// point the walk starts from.
func (r *Ring) bisectRight(tok *Token) int {
	return sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].token.Cmp(tok) > 0
	})
}

// FindNodes walks the ring clockwise from the first token strictly greater
// than hash(key), collecting up to count distinct node names not present in
// avoid (the "primary" list) while separately recording, in order of first
// encounter and deduplicated, any distinct avoid-members stepped over before
// count primaries were gathered (the "avoided" list). The walk stops after
// one full revolution even if fewer than count primaries were found.
//
// avoid may be nil, meaning no node is excluded.
func (r *Ring) FindNodes(key string, count int, avoid map[string]bool) (primary []string, avoided []string) {
	if len(r.entries) == 0 || count <= 0 {
		return nil, nil
	}

	start := r.bisectRight(ptr(hashToken(key)))
	n := len(r.entries)

	seenPrimary := make(map[string]bool, count)
	seenAvoided := make(map[string]bool)

	for i := 0; i < n && len(primary) < count; i++ {
		e := r.entries[(start+i)%n]
		if avoid[e.node] {
			if !seenAvoided[e.node] {
				seenAvoided[e.node] = true
				avoided = append(avoided, e.node)
			}
			continue
		}
		if !seenPrimary[e.node] {
			seenPrimary[e.node] = true
			primary = append(primary, e.node)
		}
	}
	return primary, avoided
}

func ptr(t Token) *Token { return &t }

// Nodes returns the distinct physical node names currently on the ring, for
// diagnostics; order is unspecified.
func (r *Ring) Nodes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.entries {
		if !seen[e.node] {
			seen[e.node] = true
			out = append(out, e.node)
		}
	}
	return out
}
