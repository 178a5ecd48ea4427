package dynamo

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/ppriyankuu/dynamosim/internal/history"
	"github.com/ppriyankuu/dynamosim/internal/network"
	"github.com/ppriyankuu/dynamosim/internal/ring"
	"github.com/ppriyankuu/dynamosim/internal/store"
	"github.com/ppriyankuu/dynamosim/internal/timer"
	"github.com/rs/zerolog"
)

// Tunables holds the simulation's replication and timing parameters.
type Tunables struct {
	N int // replicas per key
	W int // write quorum
	R int // read quorum
	T int // virtual nodes per physical node on the ring

	// ClockLimit bounds the number of node entries a coordinator-assigned
	// write clock may carry. 0 means unbounded.
	ClockLimit int
}

// DefaultTunables returns N=3, W=2, R=2, T=10, with an unbounded vector
// clock.
func DefaultTunables() Tunables {
	return Tunables{N: 3, W: 2, R: 2, T: 10}
}

// Simulation is the single value holding every piece of global state the
// protocol needs: the ring, the message queue, the timer manager, the
// event history, and the node registry. One Simulation drives one
// deterministic run end to end; there are no package-level singletons, so
// constructing a fresh Simulation is a full reset.
type Simulation struct {
	Ring    *ring.Ring
	Net     *network.Network
	Timers  *timer.Manager
	History *history.History
	Log     zerolog.Logger

	tunables Tunables
	rng      *rand.Rand
	names    nameGenerator

	coordinators map[string]*Coordinator
	clients      map[string]*ClientNode
}

// New creates a Simulation with the given tunables, seeded deterministically
// so scenario runs are reproducible.
func New(tunables Tunables, seed int64, logger zerolog.Logger) *Simulation {
	s := &Simulation{
		Log:          logger,
		tunables:     tunables,
		rng:          rand.New(rand.NewSource(seed)),
		coordinators: make(map[string]*Coordinator),
		clients:      make(map[string]*ClientNode),
	}
	s.resetInternals()
	return s
}

func (s *Simulation) resetInternals() {
	s.History = history.New()
	s.Ring = ring.New(s.tunables.T)
	s.Net = network.New(s.History, s.Log)
	s.Timers = timer.New(s.History, s.Log)
}

// Reset tears down every node and restarts with an empty ring, queue, timer
// list, and history.
func (s *Simulation) Reset() {
	s.coordinators = make(map[string]*Coordinator)
	s.clients = make(map[string]*ClientNode)
	s.names = nameGenerator{}
	s.resetInternals()
}

// pickLiveDestination uniformly chooses among currently-configured
// (Included) Dynamo nodes — the DestinationPicker every client in this
// simulation is built with.
func (s *Simulation) pickLiveDestination() string {
	var names []string
	for name, c := range s.coordinators {
		if c.Included() {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[s.rng.Intn(len(names))]
}

// AddDynamoNode creates and registers a new replica/coordinator node. An
// empty name auto-allocates the next one in sequence (A, B, ..., Z, AA, ...).
func (s *Simulation) AddDynamoNode(name string) *Coordinator {
	if name == "" {
		name = s.names.next()
	}
	st := store.New()
	c := NewCoordinator(name, s.Ring, s.Net, s.Timers, st, s.History, s.Log, s.tunables.N, s.tunables.W, s.tunables.R, s.tunables.ClockLimit)
	s.coordinators[name] = c
	return c
}

// AddClientNode creates and registers a new client node.
func (s *Simulation) AddClientNode(name string) *ClientNode {
	if name == "" {
		name = s.names.next()
	}
	cl := NewClientNode(name, s.Net, s.Timers, s.History, s.Log, s.pickLiveDestination)
	s.clients[name] = cl
	return cl
}

// Node returns the Dynamo node named name, if any.
func (s *Simulation) Node(name string) (*Coordinator, bool) {
	c, ok := s.coordinators[name]
	return c, ok
}

// ClientNode returns the client node named name, if any.
func (s *Simulation) ClientNode(name string) (*ClientNode, bool) {
	cl, ok := s.clients[name]
	return cl, ok
}

// RemoveNode takes a node out of the ring and the network's addressable
// set, in addition to marking it removed from the configuration
// (Base.Remove already flips Included and logs the event).
func (s *Simulation) RemoveNode(name string) {
	if c, ok := s.coordinators[name]; ok {
		c.Remove()
		s.Ring.RemoveNode(name)
		s.Net.UnregisterNode(name)
	}
}

// RestoreNode re-adds a previously removed node to the ring and the
// network's addressable set.
func (s *Simulation) RestoreNode(name string) {
	if c, ok := s.coordinators[name]; ok {
		c.Restore()
		s.Ring.AddNode(name)
		s.Net.RegisterNode(c)
	}
}

// CutWires partitions the network so that no message from any node in
// fromNodes can reach any node in toNodes, until HealWires undoes it.
func (s *Simulation) CutWires(fromNodes, toNodes []string) {
	s.Net.CutWires(fromNodes, toNodes)
}

// HealWires reverses a prior CutWires.
func (s *Simulation) HealWires(fromNodes, toNodes []string) {
	s.Net.HealWires(fromNodes, toNodes)
}

// Step performs one unit of simulated work: deliver the next queued message
// if any are pending, otherwise pop the next timer. It returns false once
// both the queue and the timer list are empty — the run has quiesced.
func (s *Simulation) Step() bool {
	if s.Net.PendingCount() > 0 {
		_, errs := s.Net.Schedule(1)
		for _, err := range errs {
			s.Log.Error().Err(err).Msg("message delivery failed")
		}
		return true
	}
	if s.Timers.PendingCount() > 0 {
		return s.Timers.Pop()
	}
	return false
}

// Schedule drives the simulation for up to maxSteps units of work (or until
// it quiesces, whichever comes first) and returns how many steps actually
// ran. Messages drain before timers at every step, so a timeout always
// fires strictly later than any message sent before that quiescent point.
func (s *Simulation) Schedule(maxSteps int) int {
	steps := 0
	for steps < maxSteps && s.Step() {
		steps++
	}
	return steps
}

// Ladder renders the recorded history as an ASCII sequence diagram.
func (s *Simulation) Ladder(spacing int) string {
	var providers []history.ContentsProvider
	for _, c := range s.coordinators {
		providers = append(providers, c)
	}
	for _, cl := range s.clients {
		providers = append(providers, cl)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Name() < providers[j].Name()
	})
	return s.History.Ladder(spacing, providers, nil)
}

// Announce adds a free-text banner line to the history, rendered centered
// in the ladder diagram — useful for labelling scenario phases.
func (s *Simulation) Announce(text string) {
	s.History.Add(history.Announce, text)
}

// String renders the tunables as "N=.. W=.. R=.. T=.. K=..".
func (t Tunables) String() string {
	return fmt.Sprintf("N=%d W=%d R=%d T=%d K=%d", t.N, t.W, t.R, t.T, t.ClockLimit)
}
