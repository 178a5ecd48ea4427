// Package network implements the simulator's transport: a FIFO message
// queue plus directional "cuts" standing in for a partitioned network, in
// place of real sockets.
package network

// Message is anything that can be queued and delivered by Network. Concrete
// message types live in the dynamo package; Message only exposes what the
// transport layer and the history ladder need.
type Message interface {
	From() string
	To() string
	MsgID() uint64
	String() string
}

// Forwardable is implemented by messages that support being re-sent by an
// intermediate node without changing their logical origin — the forwarded
// copy remembers both the original sender and the node doing the
// forwarding.
type Forwardable interface {
	Message
	// Forward returns a shallow copy of the message addressed to newTo, with
	// Intermediate set to the forwarding node's name and FromNode
	// preserved from the first hop.
	Forward(newTo string, intermediate string) Message
}

// Envelope carries the bookkeeping fields common to every concrete message
// type: who sent it, who it's addressed to, a correlation id, and (once
// forwarded) the node that relayed it. Concrete message structs embed
// Envelope and add their own payload fields.
type Envelope struct {
	FromNode     string
	ToNode       string
	ID           uint64
	Intermediate string // set only on a forwarded copy
}

// From implements Message.
func (e Envelope) From() string { return e.FromNode }

// To implements Message.
func (e Envelope) To() string { return e.ToNode }

// MsgID implements Message.
func (e Envelope) MsgID() uint64 { return e.ID }

// ForwardedFrom returns the node that relayed this message, and whether it
// was forwarded at all.
func (e Envelope) ForwardedFrom() (string, bool) {
	return e.Intermediate, e.Intermediate != ""
}
