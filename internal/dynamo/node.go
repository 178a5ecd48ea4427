// Package dynamo implements the Dynamo-style replicated key-value protocol:
// node identity and lifecycle, the message taxonomy, the coordinator state
// machines (put/get with quorum, hinted handoff, ping-based recovery,
// response-timeout failover), and a client node that drives puts and gets.
package dynamo

import (
	"github.com/ppriyankuu/dynamosim/internal/history"
	"github.com/rs/zerolog"
)

// nameGenerator auto-allocates node names A, B, ..., Z, AA, AB, ...
type nameGenerator struct {
	count int
}

func (g *nameGenerator) next() string {
	switch {
	case g.count < 26:
		name := string(rune('A' + g.count))
		g.count++
		return name
	case g.count < 676:
		hi := g.count / 26
		lo := g.count % 26
		name := string(rune('A'+hi-1)) + string(rune('A'+lo))
		g.count++
		return name
	default:
		panic("dynamo: out of auto-generated node names")
	}
}

// Base implements the identity and lifecycle shared by every node kind:
// auto- or explicitly-named, a fail/recover/remove/restore toggle pair, and
// a monotonic per-node sequence number used to correlate requests. Nodes
// are referenced directly by pointer; the network and ring packages
// address them by name string.
type Base struct {
	name     string
	failed   bool
	included bool
	seq      uint64
	hist     *history.History
	log      zerolog.Logger
}

func newBase(name string, hist *history.History, log zerolog.Logger) Base {
	b := Base{name: name, included: true, hist: hist, log: log}
	log.Debug().Str("node", name).Msg("create node")
	hist.Add(history.Add, name)
	return b
}

// Name returns the node's identifier.
func (b *Base) Name() string { return b.name }

// Failed reports whether the node is currently marked down.
func (b *Base) Failed() bool { return b.failed }

// Included reports whether the node is still part of the configuration (a
// removed node is excluded even once recovered).
func (b *Base) Included() bool { return b.included }

// Fail marks the node down: it stops responding to messages and its timers
// stop popping, but it remains part of the configuration.
func (b *Base) Fail() {
	b.failed = true
	b.log.Debug().Str("node", b.name).Msg("node fails")
	b.hist.Add(history.Fail, b.name)
}

// Recover marks a failed node back up.
func (b *Base) Recover() {
	b.failed = false
	b.log.Debug().Str("node", b.name).Msg("node recovers")
	b.hist.Add(history.Recover, b.name)
}

// Remove takes the node out of the configuration entirely (it no longer
// appears in the ring or the ladder diagram's node list).
func (b *Base) Remove() {
	b.included = false
	b.log.Debug().Str("node", b.name).Msg("node removed from system")
	b.hist.Add(history.Remove, b.name)
}

// Restore puts a removed node back into the configuration. It records an
// "add" history event, not a "restore" one — the ladder diagram treats a
// restored node the same as a newly added one.
func (b *Base) Restore() {
	b.included = true
	b.log.Debug().Str("node", b.name).Msg("node restored to system")
	b.hist.Add(history.Add, b.name)
}

// NextSeq returns the next value in this node's monotonic sequence, used as
// a correlation id for outbound requests.
func (b *Base) NextSeq() uint64 {
	b.seq++
	return b.seq
}
