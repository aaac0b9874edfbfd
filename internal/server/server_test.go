package server

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arenacore/internal/protocol"
)

func TestHandleDatagram_OutOfBandRoutesToChallengeHandshake(t *testing.T) {
	srv, _, _, _, out := newTestServer()
	from := testAddr("203.0.113.70", 27960)

	srv.HandleDatagram(from, protocol.FormatOOB("getchallenge 12345"), time.Now())

	require.Len(t, out.sent, 1)
	assert.Equal(t, from, out.sent[0].addr)
}

func TestHandleDatagram_InBandFromUnknownAddressIsDropped(t *testing.T) {
	srv, _, _, _, out := newTestServer()
	from := testAddr("203.0.113.71", 27960)

	w := protocol.NewWriter(16)
	protocol.WriteInBandHeader(w, protocol.InBandHeader{})
	w.WriteByte(byte(protocol.OpClientEOF))

	srv.HandleDatagram(from, w.Bytes(), time.Now())

	assert.Empty(t, out.sent)
}

func TestHandleDatagram_InBandFromFreeSlotAddressIsDropped(t *testing.T) {
	srv, _, _, _, out := newTestServer()
	from := testAddr("203.0.113.72", 27960)
	srv.slots[0].addr = from // FREE slot still carries a stale addr from a prior connection

	w := protocol.NewWriter(16)
	protocol.WriteInBandHeader(w, protocol.InBandHeader{})
	w.WriteByte(byte(protocol.OpClientEOF))

	srv.HandleDatagram(from, w.Bytes(), time.Now())

	assert.Empty(t, out.sent)
}

func TestHandleDatagram_InBandUpdatesLastPacketTimeAndDispatches(t *testing.T) {
	srv, game, _, _, _ := newTestServer()
	from := testAddr("203.0.113.73", 27960)
	slot := srv.slots[0]
	slot.addr = from
	slot.setState(StateActive)

	w := protocol.NewWriter(32)
	protocol.WriteInBandHeader(w, protocol.InBandHeader{})
	w.WriteByte(byte(protocol.OpClientCommand))
	w.WriteUint32(1)
	w.WriteString("say hi")
	w.WriteByte(byte(protocol.OpClientEOF))

	now := time.Now()
	srv.HandleDatagram(from, w.Bytes(), now)

	assert.Equal(t, now.UnixMilli(), slot.lastPacketTime)
	require.Len(t, game.commandCalls, 1)
}

func TestTick_ReapsZombiesAfterLinger(t *testing.T) {
	srv, _, hb, _, _ := newTestServer()
	srv.cfg.ZombieLingerSeconds = 1
	slot := srv.slots[0]
	slot.addr = testAddr("203.0.113.74", 27960)
	slot.setState(StateActive)
	slot.name = "player"

	base := time.Now()
	slot.lastPacketTime = base.UnixMilli()
	srv.dropClient(slot, "testing teardown")
	assert.Equal(t, StateZombie, slot.State())

	srv.Tick(base.Add(2*time.Second), nil)

	assert.Equal(t, StateFree, slot.State())
	assert.Empty(t, srv.zombieSince)
	_ = hb
}

func TestReapZombies_DoesNotReapBeforeLingerElapses(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	srv.cfg.ZombieLingerSeconds = 10
	slot := srv.slots[0]
	slot.addr = testAddr("203.0.113.75", 27960)
	slot.setState(StateActive)
	slot.name = "player"

	base := time.Now()
	slot.lastPacketTime = base.UnixMilli()
	srv.dropClient(slot, "testing teardown")

	srv.reapZombies(base.Add(2 * time.Second))

	assert.Equal(t, StateZombie, slot.State())
}

func TestDropClient_CallsHookAndSendsDisconnect(t *testing.T) {
	srv, game, _, _, out := newTestServer()
	slot := srv.slots[0]
	slot.addr = testAddr("203.0.113.76", 27960)
	slot.setState(StateActive)
	slot.name = "player"

	srv.dropClient(slot, "kicked")

	require.Len(t, game.disconnectCalls, 1)
	assert.Equal(t, slot.index, game.disconnectCalls[0])
	assert.NotEmpty(t, out.sent)
}

func TestDropClient_IsIdempotentOnAlreadyFreeOrZombieSlot(t *testing.T) {
	srv, game, _, _, _ := newTestServer()
	slot := srv.slots[0]

	srv.dropClient(slot, "double drop")

	assert.Empty(t, game.disconnectCalls, "a FREE slot was never connected, so no hook fires")
}

func TestDropClient_HeartbeatsWhenLastConnectedClientLeaves(t *testing.T) {
	srv, _, hb, _, _ := newTestServer()
	slot := srv.slots[0]
	slot.addr = testAddr("203.0.113.85", 27960)
	slot.setState(StateActive)
	slot.name = "player"

	srv.dropClient(slot, "quit")

	assert.Equal(t, StateZombie, slot.State())
	assert.Equal(t, 1, hb.calls, "the zombie the drop just created must not count as connected")
}

func TestDropClient_NoHeartbeatWhileOthersRemainConnected(t *testing.T) {
	srv, _, hb, _, _ := newTestServer()
	for i := 0; i < 2; i++ {
		slot := srv.slots[i]
		slot.addr = testAddr("203.0.113.86", uint16(27960+i))
		slot.setState(StateActive)
		slot.name = "player"
	}

	srv.dropClient(srv.slots[0], "quit")

	assert.Zero(t, hb.calls)
}

func TestDropClient_StopsInProgressDemo(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	demos := &mockDemoRecorder{}
	srv.SetDemoRecorder(demos)
	slot := srv.slots[0]
	slot.addr = testAddr("203.0.113.79", 27960)
	slot.setState(StateActive)
	slot.name = "player"

	srv.dropClient(slot, "kicked")

	assert.Equal(t, []int{0}, demos.stopCalls)
}

func TestDropClient_BotSlotGoesStraightToFree(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	slot := srv.slots[0]
	slot.addr = testAddr("203.0.113.78", 27960)
	slot.setState(StateActive)
	slot.isBot = true

	srv.dropClient(slot, "bot removed")

	assert.Equal(t, StateFree, slot.State())
}

func TestRestartEpoch_InvalidatesOldChecksumFeed(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	oldFeed := srv.checksumFeed
	oldServerID := srv.checksumFeedServerID

	srv.RestartEpoch()

	assert.NotEqual(t, oldServerID, srv.checksumFeedServerID)
	// a reroll can coincidentally collide, but the epoch counter cannot.
	_ = oldFeed
}

func TestHandleInBand_PreRestartServerIDIsIgnored(t *testing.T) {
	srv, game, _, _, out := newTestServer()
	from := testAddr("203.0.113.80", 27960)
	slot := srv.slots[0]
	slot.addr = from
	slot.setState(StateActive)

	srv.RestartEpoch() // serverID 0 -> 1; messages stamped 0 are now pre-restart

	w := protocol.NewWriter(64)
	protocol.WriteInBandHeader(w, protocol.InBandHeader{ServerID: 0})
	w.WriteByte(byte(protocol.OpClientCommand))
	w.WriteUint32(1)
	w.WriteString("say stale")
	w.WriteByte(byte(protocol.OpClientEOF))

	srv.HandleDatagram(from, w.Bytes(), time.Now())

	assert.Empty(t, game.commandCalls, "a pre-restart message must not reach the game module")
	assert.Empty(t, out.sent)
	assert.Equal(t, StateActive, slot.State())
}

func TestHandleInBand_DroppedGamestateIsResent(t *testing.T) {
	srv, _, _, _, out := newTestServer()
	from := testAddr("203.0.113.81", 27960)
	slot := srv.slots[0]
	slot.addr = from
	slot.setState(StateConnected)
	slot.gamestateMessageNum = -1 // forces resend once the client proves it missed it

	srv.RestartEpoch()
	srv.RestartEpoch() // restartedServerID = 1; a ServerID-0 message predates even that

	w := protocol.NewWriter(32)
	protocol.WriteInBandHeader(w, protocol.InBandHeader{ServerID: 0, MessageAcknowledge: 5})
	w.WriteByte(byte(protocol.OpClientEOF))

	srv.HandleDatagram(from, w.Bytes(), time.Now())

	require.NotEmpty(t, out.sent)
	assert.Equal(t, StatePrimed, slot.State())
}

func TestHandleInBand_BogusReliableAcknowledgeResyncsToHead(t *testing.T) {
	srv, game, _, _, _ := newTestServer()
	from := testAddr("203.0.113.82", 27960)
	slot := srv.slots[0]
	slot.addr = from
	slot.setState(StateActive)
	slot.reliableSequence = 100

	w := protocol.NewWriter(64)
	protocol.WriteInBandHeader(w, protocol.InBandHeader{ReliableAcknowledge: 10})
	w.WriteByte(byte(protocol.OpClientCommand))
	w.WriteUint32(1)
	w.WriteString("say hi")
	w.WriteByte(byte(protocol.OpClientEOF))

	srv.HandleDatagram(from, w.Bytes(), time.Now())

	assert.Equal(t, slot.reliableSequence, slot.reliableAcknowledge)
	assert.Empty(t, game.commandCalls, "nothing after a bogus ack may be processed")
}

func TestFullHandshake_ChallengeConnectThenCommand(t *testing.T) {
	srv, game, _, _, out := newTestServer()
	from := testAddr("198.51.100.10", 27960)
	now := time.Now()

	srv.HandleDatagram(from, protocol.FormatOOB("getchallenge 555"), now)
	require.NotEmpty(t, out.sent)
	_, rest := protocol.ParseOOB(out.sent[0].data)
	args := protocol.SplitArgs(rest)
	require.Len(t, args, 3)

	out.sent = nil
	info := ""
	info = protocol.InfoSetValueForKey(info, "protocol", strconv.Itoa(srv.cfg.Protocol))
	info = protocol.InfoSetValueForKey(info, "challenge", args[0])
	info = protocol.InfoSetValueForKey(info, "qport", "4242")
	info = protocol.InfoSetValueForKey(info, "name", "Ace")

	srv.HandleDatagram(from, protocol.FormatOOB(`connect "`+info+`"`), now.Add(time.Second))

	require.NotEmpty(t, out.sent)
	require.Len(t, game.connectCalls, 1)

	var slot *clientSlot
	for _, s := range srv.slots {
		if s.addr == from {
			slot = s
		}
	}
	require.NotNil(t, slot)
	assert.Equal(t, StateConnected, slot.State())
}
