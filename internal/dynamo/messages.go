package dynamo

import (
	"fmt"

	"github.com/ppriyankuu/dynamosim/internal/network"
	"github.com/ppriyankuu/dynamosim/internal/vclock"
)

// base carries the envelope fields every concrete message shares.
type base struct {
	network.Envelope
}

func newMsgBase(from, to string, id uint64) base {
	return base{network.Envelope{FromNode: from, ToNode: to, ID: id}}
}

// forwardEnvelope returns a copy of b re-addressed to newTo, with
// Intermediate set to the relaying node.
func (b base) forwardEnvelope(newTo, intermediate string) base {
	b.ToNode = newTo
	b.Intermediate = intermediate
	return b
}

// ClientPut is sent by a client node to ask for key to be set to value,
// carrying the client's chosen write-context clock (nil for a first write).
type ClientPut struct {
	base
	Key   string
	Value string
	Clock vclock.Clock
}

func (m *ClientPut) String() string { return fmt.Sprintf("ClientPut(%s)", m.Key) }

// Forward returns a copy of m addressed to newTo, relayed by intermediate —
// used when the receiving node is not first on the key's preference list.
func (m *ClientPut) Forward(newTo, intermediate string) network.Message {
	cp := *m
	cp.base = m.base.forwardEnvelope(newTo, intermediate)
	return &cp
}

// ClientPutRsp confirms a ClientPut has reached write quorum.
type ClientPutRsp struct {
	base
	Key   string
	Value string
	Clock vclock.Clock
}

func (m *ClientPutRsp) String() string { return fmt.Sprintf("ClientPutRsp(%s)", m.Key) }

// NewClientPutRsp builds the response to req, carrying the same key/value
// and the coordinator-assigned clock, swapping from/to back to the client.
func NewClientPutRsp(req *ClientPut, clock vclock.Clock) *ClientPutRsp {
	return &ClientPutRsp{
		base:  newMsgBase(req.ToNode, req.FromNode, req.ID),
		Key:   req.Key,
		Value: req.Value,
		Clock: clock,
	}
}

// ClientGet is sent by a client node to ask for the current value(s) of key.
type ClientGet struct {
	base
	Key string
}

func (m *ClientGet) String() string { return fmt.Sprintf("ClientGet(%s)", m.Key) }

// Forward returns a copy of m addressed to newTo, relayed by intermediate.
func (m *ClientGet) Forward(newTo, intermediate string) network.Message {
	cp := *m
	cp.base = m.base.forwardEnvelope(newTo, intermediate)
	return &cp
}

// ClientGetRsp carries every surviving sibling value (after vector-clock
// coalescing) for a ClientGet, as two parallel slices.
type ClientGetRsp struct {
	base
	Key    string
	Values []string
	Clocks []vclock.Clock
}

func (m *ClientGetRsp) String() string { return fmt.Sprintf("ClientGetRsp(%s)", m.Key) }

// NewClientGetRsp builds the response to req.
func NewClientGetRsp(req *ClientGet, values []string, clocks []vclock.Clock) *ClientGetRsp {
	return &ClientGetRsp{
		base:   newMsgBase(req.ToNode, req.FromNode, req.ID),
		Key:    req.Key,
		Values: values,
		Clocks: clocks,
	}
}

// PutReq is sent by a coordinator to one replica, asking it to store
// key/value/clock locally. Handoff, when non-empty, names the failed
// node(s) this write is standing in for — the receiving replica records a
// hinted-handoff obligation for each.
type PutReq struct {
	base
	Key     string
	Value   string
	Clock   vclock.Clock
	Handoff []string
}

func (m *PutReq) String() string { return fmt.Sprintf("PutReq(%s)", m.Key) }

// Forward supports response-timeout failover re-targeting a PutReq to a
// freshly-computed preference-list member.
func (m *PutReq) Forward(newTo, intermediate string) network.Message {
	cp := *m
	cp.base = m.base.forwardEnvelope(newTo, intermediate)
	return &cp
}

// PutRsp acknowledges a PutReq.
type PutRsp struct {
	base
	Key   string
	Value string
	Clock vclock.Clock
}

func (m *PutRsp) String() string { return fmt.Sprintf("PutRsp(%s)", m.Key) }

// NewPutRsp builds the response to req.
func NewPutRsp(req *PutReq) *PutRsp {
	return &PutRsp{
		base:  newMsgBase(req.ToNode, req.FromNode, req.ID),
		Key:   req.Key,
		Value: req.Value,
		Clock: req.Clock,
	}
}

// GetReq is sent by a coordinator to one replica, asking for its local
// value of key.
type GetReq struct {
	base
	Key string
}

func (m *GetReq) String() string { return fmt.Sprintf("GetReq(%s)", m.Key) }

// Forward supports response-timeout failover re-targeting a GetReq.
func (m *GetReq) Forward(newTo, intermediate string) network.Message {
	cp := *m
	cp.base = m.base.forwardEnvelope(newTo, intermediate)
	return &cp
}

// GetRsp answers a GetReq. Present reports whether the replica actually had
// an entry for the key — a replica always replies, even to report absence.
type GetRsp struct {
	base
	Key     string
	Value   string
	Clock   vclock.Clock
	Present bool
}

func (m *GetRsp) String() string { return fmt.Sprintf("GetRsp(%s)", m.Key) }

// NewGetRsp builds the response to req.
func NewGetRsp(req *GetReq, value string, clock vclock.Clock, present bool) *GetRsp {
	return &GetRsp{
		base:    newMsgBase(req.ToNode, req.FromNode, req.ID),
		Key:     req.Key,
		Value:   value,
		Clock:   clock,
		Present: present,
	}
}

// PingReq probes whether a previously-failed node has recovered.
type PingReq struct {
	base
}

func (m *PingReq) String() string { return "PingReq" }

// PingRsp answers a PingReq — its mere arrival tells the prober the node is
// back up.
type PingRsp struct {
	base
}

func (m *PingRsp) String() string { return "PingRsp" }

// NewPingRsp builds the response to req.
func NewPingRsp(req *PingReq) *PingRsp {
	return &PingRsp{base: newMsgBase(req.ToNode, req.FromNode, req.ID)}
}
