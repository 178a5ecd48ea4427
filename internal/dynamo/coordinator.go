package dynamo

import (
	"fmt"
	"slices"

	"github.com/ppriyankuu/dynamosim/internal/history"
	"github.com/ppriyankuu/dynamosim/internal/network"
	"github.com/ppriyankuu/dynamosim/internal/ring"
	"github.com/ppriyankuu/dynamosim/internal/store"
	"github.com/ppriyankuu/dynamosim/internal/timer"
	"github.com/ppriyankuu/dynamosim/internal/vclock"
	"github.com/rs/zerolog"
)

// coordinatorTimerPriority is the default priority for a coordinator's
// per-request response timers.
const coordinatorTimerPriority = 20

// pingRetryPriority is the fixed priority of the recurring failed-node
// probe timer; below both response and client timers, so probes run only
// once those have been dealt with at a quiescent point.
const pingRetryPriority = 15

type outstandingPut struct {
	req   *PutReq
	timer *timer.Handle
}

type outstandingGet struct {
	req   *GetReq
	timer *timer.Handle
}

type pendingPut struct {
	msg         *ClientPut
	clock       vclock.Clock
	acked       map[string]bool
	outstanding map[string]*outstandingPut
}

type getRspEntry struct {
	Node    string
	Value   string
	Clock   vclock.Clock
	Present bool
}

type pendingGet struct {
	msg         *ClientGet
	responses   []getRspEntry
	outstanding map[string]*outstandingGet
}

// responded reports whether node has already answered this get — a retry
// must never re-target a replica that was already heard from.
func (pg *pendingGet) responded(node string) bool {
	for _, r := range pg.responses {
		if r.Node == node {
			return true
		}
	}
	return false
}

// Coordinator is a DynamoNode: it stores a shard of the keyspace, and
// whenever a client request lands on it, coordinates that request's
// replication across the key's preference list — quorum puts and gets,
// hinted handoff for failed replicas, and ping-based recovery detection.
type Coordinator struct {
	Base

	ring   *ring.Ring
	net    *network.Network
	timers *timer.Manager
	store  *store.Store

	N, W, R int

	// clockLimit bounds the number of node entries a write clock may carry;
	// 0 means unbounded.
	clockLimit int

	pendingPuts map[uint64]*pendingPut
	pendingGets map[uint64]*pendingGet

	// failedNodesList is this coordinator's own belief about which peers
	// are down, in the order it learned of each; may contain duplicates.
	// It is entirely local bookkeeping, independent of any node's actual
	// Base.failed flag.
	failedNodesList []string

	// pendingHandoffs maps a believed-failed node to the set of keys a
	// recovery ping to it should replay.
	pendingHandoffs map[string]map[string]bool

	// pendingPings tracks the response timer for each in-flight PingReq by
	// target node. An unanswered ping re-marks its target failed, which is
	// what keeps the probe loop repeating while the target stays down.
	pendingPings map[string]*timer.Handle
}

// NewCoordinator creates a Dynamo replica/coordinator node named name,
// places it on ring, registers it with net for delivery, and starts its
// recurring failed-node probe. N/W/R are the replication, write-quorum, and
// read-quorum tunables. clockLimit bounds the number of node entries a
// coordinator-assigned write clock may carry (0 means unbounded); see
// vclock.Clock.Truncated.
func NewCoordinator(name string, r *ring.Ring, net *network.Network, timers *timer.Manager, st *store.Store, hist *history.History, log zerolog.Logger, n, w, rq, clockLimit int) *Coordinator {
	c := &Coordinator{
		Base:            newBase(name, hist, log),
		ring:            r,
		net:             net,
		timers:          timers,
		store:           st,
		N:               n,
		W:               w,
		R:               rq,
		clockLimit:      clockLimit,
		pendingPuts:     make(map[uint64]*pendingPut),
		pendingGets:     make(map[uint64]*pendingGet),
		pendingHandoffs: make(map[string]map[string]bool),
		pendingPings:    make(map[string]*timer.Handle),
	}
	r.AddNode(name)
	net.RegisterNode(c)
	c.timers.Start(c, "retry", c.TimerPop, pingRetryPriority)
	return c
}

// DefaultTimerPriority implements timer.PriorityProvider.
func (c *Coordinator) DefaultTimerPriority() int { return coordinatorTimerPriority }

// Contents returns "key:value" for every locally stored key.
func (c *Coordinator) Contents() []string { return c.store.Contents() }

// Fingerprint exposes the local store's content digest, for tests asserting
// on cross-replica convergence.
func (c *Coordinator) Fingerprint() string { return c.store.Fingerprint() }

func (c *Coordinator) failedSet() map[string]bool {
	set := make(map[string]bool, len(c.failedNodesList))
	for _, n := range c.failedNodesList {
		set[n] = true
	}
	return set
}

func contains(list []string, want string) bool {
	for _, n := range list {
		if n == want {
			return true
		}
	}
	return false
}

// Rcvmsg dispatches an incoming message to the appropriate handler.
func (c *Coordinator) Rcvmsg(msg network.Message) error {
	switch m := msg.(type) {
	case *ClientPut:
		return c.rcvClientPut(m)
	case *ClientGet:
		c.rcvClientGet(m)
	case *PutReq:
		c.rcvPut(m)
	case *PutRsp:
		c.rcvPutRsp(m)
	case *GetReq:
		c.rcvGet(m)
	case *GetRsp:
		c.rcvGetRsp(m)
	case *PingReq:
		c.rcvPingReq(m)
	case *PingRsp:
		c.rcvPingRsp(m)
	default:
		return fmt.Errorf("%w: %T delivered to %s", ErrUnknownMessage, msg, c.Name())
	}
	return nil
}

// TimerPop is the recurring probe of the oldest believed-failed node. It
// always reschedules itself, so the probe repeats until this node is
// itself marked failed: timer.Manager.Pop then discards the pending probe
// timer without firing it, and the loop stays stopped (Recover does not
// restart it).
func (c *Coordinator) TimerPop(reason string) {
	if len(c.failedNodesList) > 0 {
		node := c.failedNodesList[0]
		c.failedNodesList = c.failedNodesList[1:]
		seqno := c.NextSeq()
		c.net.Send(&PingReq{base: newMsgBase(c.Name(), node, seqno)})
		if _, waiting := c.pendingPings[node]; !waiting {
			// An unanswered ping re-marks the target failed, so the next
			// probe cycle tries it again.
			c.pendingPings[node] = c.timers.Start(c, "ping-timeout", func(string) {
				delete(c.pendingPings, node)
				c.handleNodeTimeout(node)
			}, 0)
		}
	}
	c.timers.Start(c, "retry", c.TimerPop, pingRetryPriority)
}

// rcvClientPut handles a ClientPut addressed to this node: forwards it to
// the true coordinator if this node isn't on the key's preference list,
// otherwise fans out a PutReq to each of the first N preference-list
// members (marking the surrogate sends at the tail as hinted-handoff
// writes for whichever nodes were avoided).
func (c *Coordinator) rcvClientPut(msg *ClientPut) error {
	preferenceList, avoided := c.ring.FindNodes(msg.Key, c.N, c.failedSet())
	if len(avoided) > c.N {
		avoided = avoided[:c.N] // only the first N matter as surrogate targets
	}
	nonExtraCount := c.N - len(avoided)

	if !contains(preferenceList, c.Name()) {
		if len(preferenceList) == 0 {
			return nil
		}
		c.log.Info().Str("key", msg.Key).Strs("maps_to", preferenceList).Msg("put forwarded to coordinator")
		c.net.Forward(msg, preferenceList[0], c.Name())
		return nil
	}

	// The write's clock entry for this coordinator is its freshly allocated
	// seqno, not a +1 of whatever the client handed us: two independent
	// blind writes (clock=nil) through the same coordinator must derive
	// distinct, ordered clocks rather than both landing on {self:1} and
	// getting coalesced into one version at read time.
	seqno := c.NextSeq()
	clock := msg.Clock
	if clock == nil {
		clock = vclock.New()
	}
	clock, err := clock.Update(c.Name(), seqno)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	clock = clock.Truncated(c.clockLimit, c.Name())
	c.log.Info().Str("node", c.Name()).Uint64("seqno", seqno).Str("key", msg.Key).Str("value", msg.Value).Msg("put")

	pp := &pendingPut{
		msg:         msg,
		clock:       clock,
		acked:       make(map[string]bool),
		outstanding: make(map[string]*outstandingPut),
	}
	c.pendingPuts[seqno] = pp

	sent := 0
	for i, node := range preferenceList {
		if sent >= c.N {
			break
		}
		var handoff []string
		if i >= nonExtraCount {
			handoff = avoided
		}
		req := &PutReq{
			base:    newMsgBase(c.Name(), node, seqno),
			Key:     msg.Key,
			Value:   msg.Value,
			Clock:   clock,
			Handoff: handoff,
		}
		h := c.startPutTimer(node)
		pp.outstanding[node] = &outstandingPut{req: req, timer: h}
		c.net.Send(req)
		sent++
	}
	return nil
}

// rcvClientGet handles a ClientGet the same way, fanning a GetReq out to
// the first N preference-list members.
func (c *Coordinator) rcvClientGet(msg *ClientGet) {
	preferenceList, _ := c.ring.FindNodes(msg.Key, c.N, c.failedSet())

	if !contains(preferenceList, c.Name()) {
		if len(preferenceList) == 0 {
			return
		}
		c.log.Info().Str("key", msg.Key).Strs("maps_to", preferenceList).Msg("get forwarded to coordinator")
		c.net.Forward(msg, preferenceList[0], c.Name())
		return
	}

	seqno := c.NextSeq()
	pg := &pendingGet{
		msg:         msg,
		outstanding: make(map[string]*outstandingGet),
	}
	c.pendingGets[seqno] = pg

	sent := 0
	for _, node := range preferenceList {
		if sent >= c.N {
			break
		}
		req := &GetReq{base: newMsgBase(c.Name(), node, seqno), Key: msg.Key}
		h := c.startGetTimer(node)
		pg.outstanding[node] = &outstandingGet{req: req, timer: h}
		c.net.Send(req)
		sent++
	}
}

// rcvPut stores a replica write locally and, if it carries a handoff,
// records the obligation to replay it once the named node(s) recover.
func (c *Coordinator) rcvPut(msg *PutReq) {
	c.log.Info().Str("node", c.Name()).Str("key", msg.Key).Str("value", msg.Value).Msg("store")
	c.store.Put(msg.Key, msg.Value, msg.Clock)
	for _, failedNode := range msg.Handoff {
		c.failedNodesList = append(c.failedNodesList, failedNode)
		set, ok := c.pendingHandoffs[failedNode]
		if !ok {
			set = make(map[string]bool)
			c.pendingHandoffs[failedNode] = set
		}
		set[msg.Key] = true
	}
	c.net.Send(NewPutRsp(msg))
}

// rcvPutRsp counts one replica's ack toward write quorum, replying to the
// original client once W acks are in; the response timers of requests still
// outstanding at that point are cancelled with it. A reply for an
// already-completed (or never-started, from this node's perspective) put is
// a superfluous reply and is silently ignored.
func (c *Coordinator) rcvPutRsp(msg *PutRsp) {
	pp, ok := c.pendingPuts[msg.ID]
	if !ok {
		return
	}
	if ost, ok := pp.outstanding[msg.FromNode]; ok {
		c.timers.Cancel(ost.timer)
		delete(pp.outstanding, msg.FromNode)
	}
	pp.acked[msg.FromNode] = true
	if len(pp.acked) >= c.W {
		c.log.Info().Str("node", c.Name()).Int("copies", len(pp.acked)).Str("key", msg.Key).Msg("write quorum reached")
		nodes := make([]string, 0, len(pp.outstanding))
		for node := range pp.outstanding {
			nodes = append(nodes, node)
		}
		slices.Sort(nodes)
		for _, node := range nodes {
			c.timers.Cancel(pp.outstanding[node].timer)
		}
		delete(c.pendingPuts, msg.ID)
		c.net.Send(NewClientPutRsp(pp.msg, pp.clock))
	}
}

// rcvGet answers with the local value of key, if any — a replica always
// replies, even to report it has nothing for that key.
func (c *Coordinator) rcvGet(msg *GetReq) {
	entry, present := c.store.Get(msg.Key)
	c.net.Send(NewGetRsp(msg, entry.Value, entry.Clock, present))
}

// rcvGetRsp counts one replica's response toward read quorum, replying to
// the client with the coalesced sibling set once R responses are in and
// cancelling the response timers of requests still outstanding then.
func (c *Coordinator) rcvGetRsp(msg *GetRsp) {
	pg, ok := c.pendingGets[msg.ID]
	if !ok {
		return
	}
	if ost, ok := pg.outstanding[msg.FromNode]; ok {
		c.timers.Cancel(ost.timer)
		delete(pg.outstanding, msg.FromNode)
	}
	pg.responses = append(pg.responses, getRspEntry{
		Node:    msg.FromNode,
		Value:   msg.Value,
		Clock:   msg.Clock,
		Present: msg.Present,
	})
	if len(pg.responses) >= c.R {
		c.log.Info().Str("node", c.Name()).Int("copies", len(pg.responses)).Str("key", msg.Key).Msg("read quorum reached")
		nodes := make([]string, 0, len(pg.outstanding))
		for node := range pg.outstanding {
			nodes = append(nodes, node)
		}
		slices.Sort(nodes)
		for _, node := range nodes {
			c.timers.Cancel(pg.outstanding[node].timer)
		}
		delete(c.pendingGets, msg.ID)
		values, clocks := coalesceResponses(pg.responses)
		c.net.Send(NewClientGetRsp(pg.msg, values, clocks))
	}
}

// rcvPingReq always answers — its reply is the only signal the prober
// needs that the target is back up.
func (c *Coordinator) rcvPingReq(msg *PingReq) {
	c.net.Send(NewPingRsp(msg))
}

// rcvPingRsp clears every occurrence of the responding node from this
// node's failed-nodes belief and replays any hinted-handoff writes it had
// queued for it.
func (c *Coordinator) rcvPingRsp(msg *PingRsp) {
	recovered := msg.FromNode
	if h, ok := c.pendingPings[recovered]; ok {
		c.timers.Cancel(h)
		delete(c.pendingPings, recovered)
	}
	filtered := c.failedNodesList[:0]
	for _, n := range c.failedNodesList {
		if n != recovered {
			filtered = append(filtered, n)
		}
	}
	c.failedNodesList = filtered

	keySet, ok := c.pendingHandoffs[recovered]
	if !ok {
		return
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		entry, present := c.store.Get(key)
		if !present {
			continue
		}
		seqno := c.NextSeq()
		c.net.Send(&PutReq{
			base:  newMsgBase(c.Name(), recovered, seqno),
			Key:   key,
			Value: entry.Value,
			Clock: entry.Clock,
		})
	}
	delete(c.pendingHandoffs, recovered)
}

func (c *Coordinator) startPutTimer(toNode string) *timer.Handle {
	return c.timers.Start(c, "put-timeout", func(string) {
		c.handleNodeTimeout(toNode)
	}, 0)
}

func (c *Coordinator) startGetTimer(toNode string) *timer.Handle {
	return c.timers.Start(c, "get-timeout", func(string) {
		c.handleNodeTimeout(toNode)
	}, 0)
}

// handleNodeTimeout implements response-timeout failover: toNode is marked
// believed failed, and every outstanding put/get request addressed to it —
// across all in-flight operations, not just the one whose timer just
// popped — is cancelled and retried against a freshly computed preference
// list.
func (c *Coordinator) handleNodeTimeout(toNode string) {
	c.log.Info().Str("node", c.Name()).Str("peer", toNode).Msg("now treating peer as failed")
	c.failedNodesList = append(c.failedNodesList, toNode)

	// Walk in-flight operations in seqno order so concurrent retries keep
	// a reproducible history (map iteration order would not).
	for _, seqno := range sortedSeqnos(c.pendingPuts) {
		pp := c.pendingPuts[seqno]
		if ost, ok := pp.outstanding[toNode]; ok {
			c.timers.Cancel(ost.timer)
			delete(pp.outstanding, toNode)
			c.retryPut(seqno, pp, ost.req)
		}
	}
	for _, seqno := range sortedSeqnos(c.pendingGets) {
		pg := c.pendingGets[seqno]
		if ost, ok := pg.outstanding[toNode]; ok {
			c.timers.Cancel(ost.timer)
			delete(pg.outstanding, toNode)
			c.retryGet(seqno, pg, ost.req)
		}
	}
}

func sortedSeqnos[V any](m map[uint64]V) []uint64 {
	seqnos := make([]uint64, 0, len(m))
	for s := range m {
		seqnos = append(seqnos, s)
	}
	slices.Sort(seqnos)
	return seqnos
}

// retryPut regenerates the preference list (now avoiding every believed-
// failed node) and re-sends failed's request to the first member that
// neither carries an outstanding request for this put nor has already
// acked it. The replacement
// replica is a surrogate for the node that timed out, so the re-issued
// request carries it as a handoff hint on top of whatever the original
// request was already standing in for — the recipient records the
// obligation to replay this key once the timed-out node recovers.
func (c *Coordinator) retryPut(seqno uint64, pp *pendingPut, failed *PutReq) {
	handoff := failed.Handoff
	if !contains(handoff, failed.ToNode) {
		handoff = append(append([]string(nil), handoff...), failed.ToNode)
	}
	preferenceList, _ := c.ring.FindNodes(pp.msg.Key, c.N, c.failedSet())
	for _, node := range preferenceList {
		if _, busy := pp.outstanding[node]; busy || pp.acked[node] {
			continue
		}
		req := &PutReq{
			base:    newMsgBase(c.Name(), node, seqno),
			Key:     failed.Key,
			Value:   failed.Value,
			Clock:   failed.Clock,
			Handoff: handoff,
		}
		h := c.startPutTimer(node)
		pp.outstanding[node] = &outstandingPut{req: req, timer: h}
		c.net.Send(req)
		return
	}
}

func (c *Coordinator) retryGet(seqno uint64, pg *pendingGet, failed *GetReq) {
	preferenceList, _ := c.ring.FindNodes(pg.msg.Key, c.N, c.failedSet())
	for _, node := range preferenceList {
		if _, busy := pg.outstanding[node]; busy || pg.responded(node) {
			continue
		}
		req := &GetReq{base: newMsgBase(c.Name(), node, seqno), Key: failed.Key}
		h := c.startGetTimer(node)
		pg.outstanding[node] = &outstandingGet{req: req, timer: h}
		c.net.Send(req)
		return
	}
}

// coalesceResponses reduces a read-quorum's replica responses to the
// minimal set of mutually-concurrent sibling values: the same antichain
// reduction as vclock.Coalesce, tracking which value each surviving clock
// belongs to. A response strictly dominated by another is dropped even
// when the two values differ.
func coalesceResponses(responses []getRspEntry) ([]string, []vclock.Clock) {
	type pair struct {
		value string
		clock vclock.Clock
	}
	var pairs []pair
	for _, r := range responses {
		if !r.Present {
			continue
		}
		pairs = append(pairs, pair{r.Value, r.Clock})
	}
	var kept []pair
	for _, p := range pairs {
		subsumed := false
		for i, existing := range kept {
			if p.clock.LessOrEqual(existing.clock) {
				subsumed = true
				break
			}
			if existing.clock.Less(p.clock) {
				kept[i] = p
				// p may also dominate later survivors; drop them so the
				// result stays an antichain.
				rest := kept[:i+1]
				for _, later := range kept[i+1:] {
					if !later.clock.Less(p.clock) {
						rest = append(rest, later)
					}
				}
				kept = rest
				subsumed = true
				break
			}
		}
		if !subsumed {
			kept = append(kept, p)
		}
	}
	values := make([]string, len(kept))
	clocks := make([]vclock.Clock, len(kept))
	for i, p := range kept {
		values[i] = p.value
		clocks[i] = p.clock
	}
	return values, clocks
}
