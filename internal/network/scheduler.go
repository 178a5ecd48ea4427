package network

import (
	"github.com/ppriyankuu/dynamosim/internal/history"
	"github.com/rs/zerolog"
)

// Node is the subset of node behavior the scheduler needs to deliver a
// message: a name for addressing, liveness for drop/cut decisions, and a
// receive handler.
type Node interface {
	Name() string
	Failed() bool
	Rcvmsg(msg Message) error
}

// Network is the simulator's transport: an ordered FIFO queue of
// in-flight messages plus a set of directional "cuts" that make delivery
// from one node to another fail, standing in for a network partition.
// Network is not safe for concurrent use — the simulator is single-threaded.
type Network struct {
	hist  *history.History
	log   zerolog.Logger
	nodes map[string]Node
	cuts  map[string]map[string]bool
	queue []Message
}

// New returns an empty Network recording its activity to hist and logging
// it to log.
func New(hist *history.History, log zerolog.Logger) *Network {
	return &Network{
		hist:  hist,
		log:   log,
		nodes: make(map[string]Node),
		cuts:  make(map[string]map[string]bool),
	}
}

// Reset clears the queue and all cuts, but keeps registered nodes (callers
// that want a fully clean slate should also drop and re-register nodes).
func (n *Network) Reset() {
	n.queue = nil
	n.cuts = make(map[string]map[string]bool)
}

// RegisterNode makes node addressable by name for delivery.
func (n *Network) RegisterNode(node Node) {
	n.nodes[node.Name()] = node
}

// UnregisterNode removes node from the addressable set (used when a node is
// permanently removed from the configuration).
func (n *Network) UnregisterNode(name string) {
	delete(n.nodes, name)
}

// CutWires marks every (from, to) pair drawn from fromNodes x toNodes as
// unreachable, simulating a network partition. Passing the same node on
// both sides, or calling CutWires again with an empty pairing, has no
// special meaning beyond the pairs it actually sets.
func (n *Network) CutWires(fromNodes, toNodes []string) {
	for _, from := range fromNodes {
		set, ok := n.cuts[from]
		if !ok {
			set = make(map[string]bool)
			n.cuts[from] = set
		}
		for _, to := range toNodes {
			set[to] = true
		}
	}
}

// HealWires removes any cuts previously set between fromNodes and toNodes.
func (n *Network) HealWires(fromNodes, toNodes []string) {
	for _, from := range fromNodes {
		set, ok := n.cuts[from]
		if !ok {
			continue
		}
		for _, to := range toNodes {
			delete(set, to)
		}
	}
}

// Reachable reports whether a message from `from` can currently reach `to`.
func (n *Network) Reachable(from, to string) bool {
	set, ok := n.cuts[from]
	if !ok {
		return true
	}
	return !set[to]
}

// Send enqueues msg for later delivery and records the send event.
func (n *Network) Send(msg Message) {
	n.log.Info().Str("from", msg.From()).Str("to", msg.To()).Stringer("msg", msg).Msg("enqueue")
	n.queue = append(n.queue, msg)
	n.hist.Add(history.Send, msg)
}

// Forward re-sends msg as a copy addressed to newTo, recorded as a forward
// (not a send) so the ladder diagram draws it from the relaying node.
func (n *Network) Forward(msg Forwardable, newTo, intermediate string) {
	fwd := msg.Forward(newTo, intermediate)
	n.log.Info().Str("via", intermediate).Str("to", newTo).Stringer("msg", fwd).Msg("forward")
	n.queue = append(n.queue, fwd)
	n.hist.Add(history.Forward, fwd)
}

// Schedule drains up to maxMessages messages from the queue, delivering each
// to its destination node unless that node has failed (a drop) or the wire
// between sender and receiver has been cut (a cut). It returns the number of
// messages actually processed (delivered, dropped, or cut) and any errors a
// node's Rcvmsg returned while handling a delivered message (an unknown
// message type, typically) — the scheduler keeps draining rather than
// aborting on one node's error.
func (n *Network) Schedule(maxMessages int) (int, []error) {
	processed := 0
	var errs []error
	for processed < maxMessages && len(n.queue) > 0 {
		msg := n.queue[0]
		n.queue = n.queue[1:]
		processed++

		to, ok := n.nodes[msg.To()]
		switch {
		case !ok || to.Failed():
			n.log.Info().Str("to", msg.To()).Stringer("msg", msg).Msg("drop: destination down")
			n.hist.Add(history.Drop, msg)
		case !n.Reachable(effectiveSender(msg), msg.To()):
			n.log.Info().Str("to", msg.To()).Stringer("msg", msg).Msg("drop: route down")
			n.hist.Add(history.Cut, msg)
		default:
			n.log.Info().Str("to", msg.To()).Stringer("msg", msg).Msg("dequeue")
			n.hist.Add(history.Deliver, msg)
			if err := to.Rcvmsg(msg); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return processed, errs
}

// effectiveSender returns the node whose outbound wire state governs this
// hop: the relaying node for a forwarded message, the original sender
// otherwise.
func effectiveSender(msg Message) string {
	type forwarded interface{ ForwardedFrom() (string, bool) }
	if f, ok := msg.(forwarded); ok {
		if intermediate, was := f.ForwardedFrom(); was {
			return intermediate
		}
	}
	return msg.From()
}

// PendingCount returns the number of messages currently queued for
// delivery.
func (n *Network) PendingCount() int {
	return len(n.queue)
}
