package dynamo

import (
	"testing"

	"github.com/ppriyankuu/dynamosim/internal/vclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSimulation builds the six-node, N=3/W=2/R=2/T=10 configuration
// most scenarios here run on, with a single client "a".
func newTestSimulation(seed int64) (*Simulation, *ClientNode) {
	sim := New(DefaultTunables(), seed, zerolog.Nop())
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		sim.AddDynamoNode(name)
	}
	client := sim.AddClientNode("a")
	return sim, client
}

func TestSimplePut_ReachesWriteQuorum(t *testing.T) {
	sim, client := newTestSimulation(0)

	client.Put("coffee", "black", nil, "")
	sim.Schedule(1000)

	require.NotNil(t, client.LastPutRsp)
	assert.Equal(t, "coffee", client.LastPutRsp.Key)
	assert.Equal(t, "black", client.LastPutRsp.Value)
}

func TestSimpleGet_ReturnsValueWrittenByPrecedingPut(t *testing.T) {
	sim, client := newTestSimulation(0)

	client.Put("coffee", "black", nil, "")
	sim.Schedule(1000)
	require.NotNil(t, client.LastPutRsp)

	client.Get("coffee", "")
	sim.Schedule(1000)

	require.NotNil(t, client.LastGetRsp)
	assert.Equal(t, "coffee", client.LastGetRsp.Key)
	require.Len(t, client.LastGetRsp.Values, 1)
	assert.Equal(t, "black", client.LastGetRsp.Values[0])
}

func TestGet_OfNeverWrittenKeyReturnsNoValues(t *testing.T) {
	sim, client := newTestSimulation(0)

	client.Get("ghost", "")
	sim.Schedule(1000)

	require.NotNil(t, client.LastGetRsp)
	assert.Empty(t, client.LastGetRsp.Values)
}

func TestPut_SucceedsWhenCoordinatorDiesBeforeForwarding(t *testing.T) {
	sim, client := newTestSimulation(0)

	// Pin the request to a node that is already down: the ClientPut is
	// dropped at delivery, and the client's own retry-on-timeout path must
	// re-issue it to a freshly picked live destination.
	node, _ := sim.Node("A")
	node.Fail()

	client.Put("coffee", "black", nil, "A")
	sim.Schedule(5000)

	require.NotNil(t, client.LastPutRsp)
	assert.Equal(t, "black", client.LastPutRsp.Value)
}

func TestPut_SucceedsWithTwoReplicasFailedMidRequest(t *testing.T) {
	sim, client := newTestSimulation(0)

	client.Put("coffee", "black", nil, "")
	// Immediately fail two of the six nodes — whichever of them are mid-flight
	// PutReq targets will time out and be retried elsewhere, but with W=2 of
	// N=3 the quorum can still be satisfied by the surviving replica plus a
	// handoff surrogate.
	for _, name := range []string{"B", "C"} {
		if n, ok := sim.Node(name); ok {
			n.Fail()
		}
	}
	sim.Schedule(5000)

	require.NotNil(t, client.LastPutRsp)
	assert.Equal(t, "black", client.LastPutRsp.Value)
}

// TestHintedHandoff_ReplaysOnRecovery drives a put whose second and third
// preference-list replicas are down. W=3 means the coordinator's own copy
// alone cannot reach quorum: both response timeouts must re-issue the
// write to the next untried nodes, each carrying a handoff hint naming the
// replica it stands in for. Once the downed replicas recover, the
// surrogates' ping probes notice and replay the write to them.
func TestHintedHandoff_ReplaysOnRecovery(t *testing.T) {
	sim := New(Tunables{N: 3, W: 3, R: 2, T: 10}, 0, zerolog.Nop())
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		sim.AddDynamoNode(name)
	}
	client := sim.AddClientNode("a")

	pref, _ := sim.Ring.FindNodes("coffee", 6, nil)
	require.GreaterOrEqual(t, len(pref), 5)

	p1, _ := sim.Node(pref[1])
	p2, _ := sim.Node(pref[2])
	p1.Fail()
	p2.Fail()

	client.Put("coffee", "black", nil, pref[0])
	sim.Schedule(5000)
	require.NotNil(t, client.LastPutRsp)
	assert.Empty(t, p1.Contents())
	assert.Empty(t, p2.Contents())

	p1.Recover()
	p2.Recover()
	// Drive the simulation further so the surrogates' ping probes get
	// through and the hinted-handoff writes replay.
	sim.Schedule(20000)

	assert.Contains(t, p1.Contents(), "coffee:black")
	assert.Contains(t, p2.Contents(), "coffee:black")
}

// TestPartitionedWrites_ProduceConcurrentSiblingsOnHeal splits the network
// so that two independent clients each reach write quorum on their own
// side, producing real sibling versions once the partition heals.
// Replication is widened to N=R=6 (every node replicates every key) so the
// scenario is independent of where the ring happens to place "coffee" —
// both halves of the cut are guaranteed to hold a full quorum's worth of
// replicas, and a single read is guaranteed to hear from every replica on
// both sides.
func TestPartitionedWrites_ProduceConcurrentSiblingsOnHeal(t *testing.T) {
	sim := New(Tunables{N: 6, W: 3, R: 6, T: 10}, 0, zerolog.Nop())
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		sim.AddDynamoNode(name)
	}
	a := sim.AddClientNode("a")
	b := sim.AddClientNode("b")

	a.Put("coffee", "black", nil, "A")
	sim.Schedule(2000)
	require.NotNil(t, a.LastPutRsp)
	baseClock := a.LastPutRsp.Clock

	// cut_wires({a,A,B,C},{b,D,E,F}) and reverse: a full, bidirectional split
	// between the two halves, each still fully connected internally.
	left := []string{"a", "A", "B", "C"}
	right := []string{"b", "D", "E", "F"}
	sim.CutWires(left, right)
	sim.CutWires(right, left)

	a.Put("coffee", "latte", baseClock, "A")
	b.Put("coffee", "mocha", baseClock, "D")
	sim.Schedule(2000)

	require.NotNil(t, a.LastPutRsp)
	require.NotNil(t, b.LastPutRsp)
	assert.Equal(t, "latte", a.LastPutRsp.Value)
	assert.Equal(t, "mocha", b.LastPutRsp.Value)

	sim.HealWires(left, right)
	sim.HealWires(right, left)

	a.Get("coffee", "A")
	sim.Schedule(2000)

	require.NotNil(t, a.LastGetRsp)
	require.Len(t, a.LastGetRsp.Values, 2)
	assert.ElementsMatch(t, []string{"latte", "mocha"}, a.LastGetRsp.Values)
	require.Len(t, a.LastGetRsp.Clocks, 2)
	assert.Equal(t, vclock.Concurrent, vclock.Compare(a.LastGetRsp.Clocks[0], a.LastGetRsp.Clocks[1]))

	// The reconciling put: read both siblings, converge their clocks, and
	// write — producing a clock that dominates both ancestors.
	converged := vclock.Converge(a.LastGetRsp.Clocks)
	a.Put("coffee", "mocha latte", converged, "A")
	sim.Schedule(2000)

	require.NotNil(t, a.LastPutRsp)
	assert.True(t, a.LastGetRsp.Clocks[0].LessOrEqual(a.LastPutRsp.Clock))
	assert.True(t, a.LastGetRsp.Clocks[1].LessOrEqual(a.LastPutRsp.Clock))
}

// TestRepeatedBlindPuts_DeriveDistinctMonotonicClocks guards the
// coordinator's write-clock derivation: two independent blind writes
// (clock=nil) to the same key, routed through the same coordinator, must
// never derive the identical clock. Deriving the new entry from the
// coordinator's own allocated sequence number (rather than a plain
// per-message increment) is what makes this hold — with a plain increment,
// two blind writes both starting from an empty clock land on the same
// {node:1} regardless of how many times the coordinator has already
// written.
func TestRepeatedBlindPuts_DeriveDistinctMonotonicClocks(t *testing.T) {
	sim := New(Tunables{N: 1, W: 1, R: 1, T: 4}, 0, zerolog.Nop())
	node := sim.AddDynamoNode("A")
	client := sim.AddClientNode("a")

	client.Put("k", "v1", nil, node.Name())
	sim.Schedule(100)
	require.NotNil(t, client.LastPutRsp)
	first := client.LastPutRsp.Clock

	client.Put("k", "v2", nil, node.Name())
	sim.Schedule(100)
	require.NotNil(t, client.LastPutRsp)
	second := client.LastPutRsp.Clock

	assert.False(t, first.Equal(second), "two independent blind writes through the same coordinator must not derive the identical clock")
	assert.True(t, first.Less(second))
}

func TestRemovedNode_IsExcludedFromPreferenceList(t *testing.T) {
	sim, client := newTestSimulation(0)

	sim.RemoveNode("F")
	client.Put("coffee", "black", nil, "")
	sim.Schedule(2000)

	require.NotNil(t, client.LastPutRsp)
	f, _ := sim.Node("F")
	assert.False(t, f.Included())
	pref, _ := sim.Ring.FindNodes("coffee", 6, nil)
	assert.NotContains(t, pref, "F")
}

func TestClockLimit_TruncatesWriteClockEntries(t *testing.T) {
	sim := New(Tunables{N: 1, W: 1, R: 1, T: 4, ClockLimit: 2}, 0, zerolog.Nop())
	node := sim.AddDynamoNode("A")
	client := sim.AddClientNode("a")

	// Hand the coordinator a write-context clock that already carries three
	// node entries; with ClockLimit=2 the result must shed two of them, since
	// the coordinator's own entry is always kept.
	priorClock := vclock.Clock{"X": 5, "Y": 5, "Z": 5}
	client.Put("k", "v", priorClock, node.Name())
	sim.Schedule(100)

	require.NotNil(t, client.LastPutRsp)
	assert.LessOrEqual(t, len(client.LastPutRsp.Clock), 2)
	assert.Contains(t, client.LastPutRsp.Clock, node.Name())
}

func TestUnknownMessageTypeIsReported(t *testing.T) {
	sim, _ := newTestSimulation(0)
	a, _ := sim.Node("A")

	err := a.Rcvmsg(unknownMsg{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

type unknownMsg struct{}

func (unknownMsg) From() string   { return "z" }
func (unknownMsg) To() string     { return "A" }
func (unknownMsg) MsgID() uint64  { return 0 }
func (unknownMsg) String() string { return "unknown" }
