package server

import "sync/atomic"

// reliableWindowSize bounds how many unacknowledged reliable commands a
// client may have outstanding; the ring is indexed modulo this.
const reliableWindowSize = 64

// UserCmd is one frame of client input. The core treats Data as opaque —
// the game module is the only thing that interprets movement, angles, and
// button bits — the core only needs ServerTime to order and deduplicate
// frames and Data to delta-encode/decode them.
type UserCmd struct {
	ServerTime int32
	Data       []byte
}

// clientSlot is one server seat. index is the stable client id for the
// lifetime of a connection; everything else hands slots around by this
// index, never by address.
type clientSlot struct {
	index int

	// state is read by external observers (an admin/status handler, a
	// metrics exporter) without the tick lock; only the tick goroutine
	// ever writes it.
	state atomic.Int32

	// Network channel
	addr       Addr
	qport      uint16
	compat     bool // legacy protocol negotiated on connect
	challenge  int32
	isBot      bool

	// Reliable command ring
	reliableSequence    uint32
	reliableAcknowledge uint32
	lastClientCommand   uint32
	reliableCommands    [reliableWindowSize]string
	lastClientCommandString string

	// userinfo flood staging
	userinfoFloodBuffer string
	userinfoFloodStaged bool

	messageAcknowledge  int32
	gamestateMessageNum int32

	// csUpdated flags configstring indexes changed while PRIMED, delivered
	// on the transition to ACTIVE.
	csUpdated map[int]bool

	lastUsercmd      UserCmd
	lastSnapshotTime int64 // ms
	snapshotMsec     int32
	deltaMessage     int32
	lastSnapshotSize int32

	pureAuthentic bool
	gotCP         bool

	nextReliableTime     int64 // ms, flood window for reliable commands
	nextReliableUserTime int64 // ms, flood re-arm window for userinfo updates
	numcmds              int

	rate int32 // bytes/sec outbound clamp

	userinfo string

	lastConnectTime int64 // ms
	lastPacketTime  int64 // ms

	name     string
	handicap string

	pingSamples          [pingHistorySize]int64
	lastRecordedAckFrame int32

	voipMuteAll bool
	voipIgnored map[int]bool
	voipQueue   []voipPacket
}

func newClientSlot(index int) *clientSlot {
	s := &clientSlot{index: index}
	s.state.Store(int32(StateFree))
	s.lastRecordedAckFrame = -1
	return s
}

func (s *clientSlot) State() ClientState {
	return ClientState(s.state.Load())
}

func (s *clientSlot) setState(v ClientState) {
	s.state.Store(int32(v))
}

// reset zeroes every field that must not survive across a connect.
func (s *clientSlot) reset() {
	index := s.index
	*s = clientSlot{index: index}
	s.state.Store(int32(StateFree))
	s.lastRecordedAckFrame = -1
}

// recordReliableCommand stores cmd at its ring slot and advances
// reliableSequence.
func (s *clientSlot) recordReliableCommand(cmd string) {
	s.reliableSequence++
	s.reliableCommands[s.reliableSequence%reliableWindowSize] = cmd
}
