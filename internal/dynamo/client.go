package dynamo

import (
	"fmt"

	"github.com/ppriyankuu/dynamosim/internal/history"
	"github.com/ppriyankuu/dynamosim/internal/network"
	"github.com/ppriyankuu/dynamosim/internal/timer"
	"github.com/ppriyankuu/dynamosim/internal/vclock"
	"github.com/rs/zerolog"
)

// clientTimerPriority is a client node's default timer priority: below a
// coordinator's response timers, so a client retry only fires once the
// coordinators have had their chance to fail over.
const clientTimerPriority = 17

type clientPendingPut struct {
	key   string
	value string
	clock vclock.Clock
	timer *timer.Handle
}

type clientPendingGet struct {
	key   string
	timer *timer.Handle
}

// DestinationPicker returns the name of a node a client should send its next
// request to when the caller didn't pin one. The simulation supplies this
// (closing over its node registry and its seeded RNG) so ClientNode itself
// stays free of global state.
type DestinationPicker func() string

// ClientNode issues put/get requests into the simulation and retries them
// against a freshly (re-)randomized destination if no response arrives
// before its own timer pops.
type ClientNode struct {
	Base

	net     *network.Network
	timers  *timer.Manager
	pickDst DestinationPicker

	pendingPuts map[uint64]*clientPendingPut
	pendingGets map[uint64]*clientPendingGet

	// LastPutRsp/LastGetRsp record the most recent response this client
	// received, for whoever called Put/Get to read off the outcome.
	LastPutRsp *ClientPutRsp
	LastGetRsp *ClientGetRsp
}

// NewClientNode creates a client node named name.
func NewClientNode(name string, net *network.Network, timers *timer.Manager, hist *history.History, log zerolog.Logger, pickDst DestinationPicker) *ClientNode {
	cl := &ClientNode{
		Base:        newBase(name, hist, log),
		net:         net,
		timers:      timers,
		pickDst:     pickDst,
		pendingPuts: make(map[uint64]*clientPendingPut),
		pendingGets: make(map[uint64]*clientPendingGet),
	}
	net.RegisterNode(cl)
	return cl
}

// DefaultTimerPriority implements timer.PriorityProvider.
func (cl *ClientNode) DefaultTimerPriority() int { return clientTimerPriority }

// Contents implements history.ContentsProvider — a client node never holds
// data of its own.
func (cl *ClientNode) Contents() []string { return nil }

// Put sends a ClientPut for key/value, optionally carrying a prior read's
// clock as the write context. destNode pins the request's first hop; pass
// "" to let pickDst choose (as every retry always does, pinned or not).
func (cl *ClientNode) Put(key, value string, clock vclock.Clock, destNode string) uint64 {
	if destNode == "" {
		destNode = cl.pickDst()
	}
	seqno := cl.NextSeq()
	msg := &ClientPut{base: newMsgBase(cl.Name(), destNode, seqno), Key: key, Value: value, Clock: clock}

	pp := &clientPendingPut{key: key, value: value, clock: clock}
	pp.timer = cl.timers.Start(cl, "client-put-timeout", func(string) { cl.retryPut(seqno) }, 0)
	cl.pendingPuts[seqno] = pp

	cl.net.Send(msg)
	return seqno
}

// Get sends a ClientGet for key.
func (cl *ClientNode) Get(key string, destNode string) uint64 {
	if destNode == "" {
		destNode = cl.pickDst()
	}
	seqno := cl.NextSeq()
	msg := &ClientGet{base: newMsgBase(cl.Name(), destNode, seqno), Key: key}

	pg := &clientPendingGet{key: key}
	pg.timer = cl.timers.Start(cl, "client-get-timeout", func(string) { cl.retryGet(seqno) }, 0)
	cl.pendingGets[seqno] = pg

	cl.net.Send(msg)
	return seqno
}

// retryPut re-issues a put that never got a response, against a fresh
// random destination — a retry never re-pins the original destination,
// which may be exactly what went wrong.
func (cl *ClientNode) retryPut(seqno uint64) {
	pp, ok := cl.pendingPuts[seqno]
	if !ok {
		return
	}
	delete(cl.pendingPuts, seqno)
	cl.Put(pp.key, pp.value, pp.clock, "")
}

func (cl *ClientNode) retryGet(seqno uint64) {
	pg, ok := cl.pendingGets[seqno]
	if !ok {
		return
	}
	delete(cl.pendingGets, seqno)
	cl.Get(pg.key, "")
}

// Rcvmsg records whichever response arrived and cancels that request's
// timeout timer. The client takes no further action on a response — it
// exists to be read by whoever called Put/Get.
func (cl *ClientNode) Rcvmsg(msg network.Message) error {
	switch m := msg.(type) {
	case *ClientPutRsp:
		if pp, ok := cl.pendingPuts[m.ID]; ok {
			cl.timers.Cancel(pp.timer)
			delete(cl.pendingPuts, m.ID)
		}
		cl.LastPutRsp = m
	case *ClientGetRsp:
		if pg, ok := cl.pendingGets[m.ID]; ok {
			cl.timers.Cancel(pg.timer)
			delete(cl.pendingGets, m.ID)
		}
		cl.LastGetRsp = m
	default:
		return fmt.Errorf("%w: %T delivered to %s", ErrUnknownMessage, msg, cl.Name())
	}
	return nil
}
