// Package timer implements the simulator's logical timers: a priority-
// ordered pending list popped one at a time by the scheduler, standing in
// for wall-clock delays. Higher priority timers fire first; among equal
// priorities, earlier-started timers fire first (insertion order).
package timer

import (
	"github.com/ppriyankuu/dynamosim/internal/history"
	"github.com/rs/zerolog"
)

// DefaultPriority is used when a caller starts a timer without specifying
// one and the node has no default of its own.
const DefaultPriority = 10

// Node is the subset of node behavior the timer manager needs: whether the
// node is currently failed (a failed node's timers are skipped, never
// fired) and its name. A fallback priority and pop handler are picked up
// through the optional PriorityProvider and TimerPopper interfaces.
type Node interface {
	Failed() bool
	Name() string
}

// PriorityProvider is implemented by nodes that declare a default timer
// priority for their kind.
type PriorityProvider interface {
	DefaultTimerPriority() int
}

// Callback is invoked when a timer pops, receiving the reason it was
// started with.
type Callback func(reason string)

// TimerPopper is implemented by nodes that handle their own timer pops when
// Start was called without an explicit callback.
type TimerPopper interface {
	TimerPop(reason string)
}

// Handle identifies a started timer so it can later be cancelled. It is the
// object recorded in the history's start/cancel/pop events and describes
// itself via From/String; Ladder does not draw those events.
type Handle struct {
	node     Node
	reason   string
	callback Callback
	priority int
	seq      uint64
}

// From returns the owning node's name.
func (t *Handle) From() string { return t.node.Name() }

// String renders the timer's reason.
func (t *Handle) String() string {
	if t.reason == "" {
		return "timer"
	}
	return t.reason
}

// Manager holds the pending timer list and a parallel record of every
// start/cancel/pop in hist.
type Manager struct {
	pending []*Handle
	hist    *history.History
	log     zerolog.Logger
	nextSeq uint64
}

// New returns a Manager that records its activity to hist and logs it to
// log.
func New(hist *history.History, log zerolog.Logger) *Manager {
	return &Manager{hist: hist, log: log}
}

// PendingCount returns the number of currently pending timers.
func (m *Manager) PendingCount() int {
	return len(m.pending)
}

// Reset discards all pending timers.
func (m *Manager) Reset() {
	m.pending = nil
}

func resolvePriority(node Node, priority int) int {
	if priority != 0 {
		return priority
	}
	if pp, ok := node.(PriorityProvider); ok {
		return pp.DefaultTimerPriority()
	}
	return DefaultPriority
}

// Start schedules a timer for node. If node is currently failed, Start is a
// no-op and returns nil — a failed node cannot be woken by its own clock.
// priority of 0 means "use the node's default priority."
func (m *Manager) Start(node Node, reason string, callback Callback, priority int) *Handle {
	if node.Failed() {
		return nil
	}
	t := &Handle{
		node:     node,
		reason:   reason,
		callback: callback,
		priority: resolvePriority(node, priority),
		seq:      m.nextSeq,
	}
	m.nextSeq++

	// Insert before the first pending entry with a strictly lower priority,
	// so higher-priority timers fire first and equal-priority timers keep
	// insertion order.
	idx := len(m.pending)
	for i, p := range m.pending {
		if t.priority > p.priority {
			idx = i
			break
		}
	}
	m.pending = append(m.pending, nil)
	copy(m.pending[idx+1:], m.pending[idx:])
	m.pending[idx] = t

	m.log.Debug().Str("node", node.Name()).Str("reason", reason).Int("priority", t.priority).Msg("start timer")
	m.hist.Add(history.Start, t)
	return t
}

// Cancel removes t from the pending list, if still present.
func (m *Manager) Cancel(t *Handle) {
	if t == nil {
		return
	}
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			m.log.Debug().Str("node", t.node.Name()).Str("reason", t.reason).Msg("cancel timer")
			m.hist.Add(history.Cancel, t)
			return
		}
	}
}

// Pop removes and fires the highest-priority pending timer. If that timer's
// owning node has since failed, it is discarded without firing and the next
// one is tried — a failed node's timers never pop. Pop returns false if no
// timer ultimately fires.
func (m *Manager) Pop() bool {
	for len(m.pending) > 0 {
		t := m.pending[0]
		m.pending = m.pending[1:]
		if t.node.Failed() {
			continue
		}
		m.log.Debug().Str("node", t.node.Name()).Str("reason", t.reason).Msg("pop timer")
		m.hist.Add(history.Pop, t)
		if t.callback != nil {
			t.callback(t.reason)
		} else if popper, ok := t.node.(TimerPopper); ok {
			popper.TimerPop(t.reason)
		}
		return true
	}
	return false
}
