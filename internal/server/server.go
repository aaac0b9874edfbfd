package server

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"arenacore/internal/config"
	"arenacore/internal/protocol"
)

// InboundDatagram is one []byte received from the wire, addressed by the
// peer it came from. The reader goroutine that owns the actual UDP socket
// (out of scope here) forwards these into Server.Tick.
type InboundDatagram struct {
	From Addr
	Data []byte
}

// Server aggregates every piece of state the tick goroutine owns: the
// challenge table, the client slots, the ban list, and the external
// collaborators reached through narrow interfaces.
type Server struct {
	cfg    config.Server
	logger *slog.Logger

	slots      []*clientSlot
	challenges *challengeTable
	bans       *banList

	game      GameModule
	heartbeat MasterHeartbeat
	content   ContentStore
	outbound  OutboundSink
	demos     DemoRecorder

	checksumFeed         int32
	checksumFeedServerID int32
	serverID             int32
	restartedServerID    int32

	configstrings []string
	baselines     [][]byte

	outgoingSequence int32

	zombieSince map[int]time.Time
}

// NewServer constructs a Server with cfg.MaxClients empty slots and no
// bans. Callers wire in the external collaborators (game module, master
// heartbeat, content store, outbound sink) before calling Tick.
func NewServer(cfg config.Server, logger *slog.Logger, game GameModule, heartbeat MasterHeartbeat, content ContentStore, outbound OutboundSink) *Server {
	slots := make([]*clientSlot, cfg.MaxClients)
	for i := range slots {
		slots[i] = newClientSlot(i)
	}

	srv := &Server{
		cfg:           cfg,
		logger:        logger,
		slots:         slots,
		challenges:    newChallengeTable(time.Now().UnixNano()),
		bans:          newBanList(nil),
		game:          game,
		heartbeat:     heartbeat,
		content:       content,
		outbound:      outbound,
		configstrings: make([]string, 1024),
		baselines:     make([][]byte, 1024),
		zombieSince:   make(map[int]time.Time),
	}
	srv.rollChecksumFeed()
	return srv
}

func (srv *Server) rollChecksumFeed() {
	srv.checksumFeed = int32(rand.Uint32())
	srv.checksumFeedServerID = srv.serverID
}

// SetDemoRecorder wires in the optional demo recording collaborator. A nil
// recorder (the default) disables both auto-record and the stop-on-drop
// notification.
func (srv *Server) SetDemoRecorder(d DemoRecorder) {
	srv.demos = d
}

// SetConfigstring installs a configstring slot and propagates the change:
// ACTIVE clients get a "cs" update immediately, PRIMED clients have it
// flagged for delivery when they enter the world (their gamestate has
// already been emitted, so nothing else would carry it). Out of scope:
// how the game module decides what a given index means.
func (srv *Server) SetConfigstring(index int, value string) {
	if srv.configstrings[index] == value {
		return
	}
	srv.configstrings[index] = value

	for _, slot := range srv.slots {
		switch slot.State() {
		case StateActive:
			srv.sendConfigstring(slot, index)
		case StatePrimed:
			if slot.csUpdated == nil {
				slot.csUpdated = make(map[int]bool)
			}
			slot.csUpdated[index] = true
		}
	}
}

func (srv *Server) sendConfigstring(slot *clientSlot, index int) {
	srv.sendReliableCommand(slot, fmt.Sprintf("cs %d \"%s\"", index, srv.configstrings[index]))
}

// updateConfigstrings delivers every configstring change that happened
// while the client sat in PRIMED, called on the transition to ACTIVE.
func (srv *Server) updateConfigstrings(slot *clientSlot) {
	if slot.csUpdated == nil {
		return
	}
	for index := range srv.configstrings {
		if slot.csUpdated[index] {
			srv.sendConfigstring(slot, index)
		}
	}
	slot.csUpdated = nil
}

// SetBaseline installs an entity baseline, delta-encoded from zero when a
// gamestate is emitted.
func (srv *Server) SetBaseline(index int, data []byte) {
	srv.baselines[index] = data
}

// RestartEpoch advances the content epoch (a map restart), which bumps
// checksumFeedServerID and rerolls checksumFeed, invalidating any
// in-flight "cp" or usercmd batch keyed against the old epoch.
func (srv *Server) RestartEpoch() {
	srv.restartedServerID = srv.serverID
	srv.serverID++
	srv.rollChecksumFeed()
}

// Tick drains one batch of inbound datagrams, advances zombie lingering,
// and returns. The outer loop (cmd/arenaserver) is responsible for reading
// the socket and calling this once per tick interval.
func (srv *Server) Tick(now time.Time, inbound []InboundDatagram) {
	for _, dg := range inbound {
		srv.HandleDatagram(dg.From, dg.Data, now)
	}
	srv.applyStagedUserinfo(now)
	srv.reapZombies(now)
}

// applyStagedUserinfo installs userinfo updates that were parked during a
// flood window once that window has passed.
func (srv *Server) applyStagedUserinfo(now time.Time) {
	nowMs := now.UnixMilli()
	for _, slot := range srv.slots {
		st := slot.State()
		if st == StateFree || st == StateZombie || !slot.userinfoFloodStaged {
			continue
		}
		if nowMs < slot.nextReliableUserTime {
			continue
		}
		slot.userinfo = slot.userinfoFloodBuffer
		slot.userinfoFloodBuffer = ""
		slot.userinfoFloodStaged = false
		slot.nextReliableUserTime = nowMs + int64(srv.cfg.UserinfoFloodWindow)
		srv.UserinfoChanged(slot)
		srv.game.ClientUserinfoChanged(slot.index)
	}
}

// HandleDatagram routes one datagram to the connectionless acceptor path
// or to the matching client slot's in-band handler.
func (srv *Server) HandleDatagram(from Addr, data []byte, now time.Time) {
	if protocol.IsOutOfBand(data) {
		srv.handleOutOfBand(from, data, now)
		return
	}

	slot := srv.findSlotByAddr(from)
	if slot == nil || slot.State() == StateFree {
		return
	}
	slot.lastPacketTime = now.UnixMilli()
	srv.handleInBand(slot, data)
}

func (srv *Server) findSlotByAddr(from Addr) *clientSlot {
	for _, slot := range srv.slots {
		if slot.State() != StateFree && slot.addr == from {
			return slot
		}
	}
	return nil
}

func (srv *Server) handleOutOfBand(from Addr, data []byte, now time.Time) {
	cmd, rest := protocol.ParseOOB(data)
	args := protocol.SplitArgs(rest)

	var reply []byte
	switch cmd {
	case "getchallenge":
		clientChallenge := 0
		if len(args) > 0 {
			clientChallenge = atoiOr(args[0], 0)
		}
		gameName := srv.cfg.GameName
		if len(args) > 1 {
			gameName = args[1]
		}
		reply = srv.GetChallenge(from, int32(clientChallenge), gameName, now)
	case "connect":
		if len(args) == 0 {
			return
		}
		reply = srv.DirectConnect(from, trimQuotes(args[0]), now)
	default:
		return
	}

	if reply != nil {
		srv.outbound.Enqueue(from, reply)
	}
}

// handleInBand parses the fixed header and then the block sequence of an
// in-band datagram, dispatching each block.
func (srv *Server) handleInBand(slot *clientSlot, data []byte) {
	r := protocol.NewReader(data)
	header, err := protocol.ReadInBandHeader(r)
	if err != nil {
		return
	}
	slot.messageAcknowledge = header.MessageAcknowledge
	slot.reliableAcknowledge = uint32(header.ReliableAcknowledge)

	// A client acking commands further back than the reliable window can
	// ever hold is lying about its position in the stream; resync it to the
	// head rather than indexing the ring with a bogus sequence.
	if slot.reliableAcknowledge+reliableWindowSize < slot.reliableSequence {
		slot.reliableAcknowledge = slot.reliableSequence
		return
	}

	if header.ServerID != srv.serverID {
		if header.ServerID >= srv.restartedServerID && header.ServerID < srv.serverID {
			srv.logger.Debug("ignoring pre map_restart / outdated client message", "client", slot.index)
			return
		}
		// The client has provably seen traffic newer than the last gamestate
		// we sent it, so that gamestate was lost on the wire. Resend it.
		if slot.messageAcknowledge > slot.gamestateMessageNum {
			srv.SendGameState(slot)
		}
		return
	}

	for r.Len() > 0 {
		opByte, err := r.ReadByte()
		if err != nil {
			return
		}
		switch protocol.ClientOp(opByte) {
		case protocol.OpClientCommand:
			seq, err := r.ReadUint32()
			if err != nil {
				return
			}
			s, err := r.ReadString(protocol.MaxInfoString)
			if err != nil {
				return
			}
			srv.ExecuteClientCommand(slot, seq, s, time.UnixMilli(slot.lastPacketTime))
		case protocol.OpClientMove, protocol.OpClientMoveNoDelta:
			delta := protocol.ClientOp(opByte) == protocol.OpClientMove
			if err := srv.HandleUserCmdBatch(slot, r, delta); err != nil {
				return
			}
		case protocol.OpClientVoIPOpus:
			srv.routeVoip(slot, r)
		case protocol.OpClientVoIPSpeex:
			// Accepted-and-discarded for backwards compatibility.
			discardVoipPayload(r)
		case protocol.OpClientEOF:
			return
		default:
			return
		}
	}
}

// voipPacket is one opaque voice payload queued for a recipient, flushed
// with that recipient's next snapshot.
type voipPacket struct {
	sender int
	data   []byte
}

// routeVoip fans an opaque VoIP payload out to every other hearing client.
// The payload itself is never parsed; per-recipient mute/ignore preferences
// and queue caps are the only policy applied here. A recipient whose queue
// is full silently loses the packet (voice over a congested link degrades,
// it does not drop the connection).
func (srv *Server) routeVoip(slot *clientSlot, r *protocol.Reader) {
	length, err := r.ReadShort()
	if err != nil {
		return
	}
	payload, err := r.ReadBytes(int(length))
	if err != nil {
		return
	}
	if !srv.cfg.VoIPEnabled {
		return
	}

	for _, rcpt := range srv.slots {
		if rcpt.index == slot.index || rcpt.State() != StateActive {
			continue
		}
		if rcpt.voipMuteAll || rcpt.voipIgnored[slot.index] {
			continue
		}
		if len(rcpt.voipQueue) >= srv.cfg.VoIPQueueMaxSize {
			srv.logger.Debug("voip queue full, dropping packet", "sender", slot.index, "recipient", rcpt.index)
			continue
		}
		rcpt.voipQueue = append(rcpt.voipQueue, voipPacket{
			sender: slot.index,
			data:   append([]byte(nil), payload...),
		})
	}
}

func discardVoipPayload(r *protocol.Reader) {
	length, err := r.ReadShort()
	if err != nil {
		return
	}
	_, _ = r.ReadBytes(int(length))
}

// dropClient runs the drop procedure: challenge-record release, the
// disconnect hook, notifying both peers and the dropped client, and the
// human-to-ZOMBIE / bot-to-FREE transition.
func (srv *Server) dropClient(slot *clientSlot, reason string) {
	if slot.State() == StateZombie || slot.State() == StateFree {
		return
	}

	if srv.demos != nil {
		srv.demos.StopRecording(slot.index)
	}

	if !slot.isBot {
		if rec := srv.challenges.findByChallenge(slot.addr, slot.challenge); rec != nil {
			rec.connected = false
		}
	}

	srv.sendPrint(nil, "\""+slot.name+"\" disconnected: "+reason)
	srv.game.ClientDisconnect(slot.index)
	srv.sendDirect(slot, []byte("disconnect \""+reason+"\"\x00"))

	slot.userinfo = ""

	if slot.isBot {
		slot.reset()
	} else {
		slot.setState(StateZombie)
		srv.zombieSince[slot.index] = time.UnixMilli(slot.lastPacketTime)
	}

	if srv.connectedCount() == 0 {
		srv.heartbeat.Heartbeat()
	}
}

// reapZombies frees any slot that has lingered in ZOMBIE for at least the
// configured window, absorbing late datagrams addressed to the old slot.
func (srv *Server) reapZombies(now time.Time) {
	for idx, since := range srv.zombieSince {
		if now.Sub(since) >= time.Duration(srv.cfg.ZombieLingerSeconds)*time.Second {
			srv.slots[idx].reset()
			delete(srv.zombieSince, idx)
		}
	}
}

// enqueue hands a fully-assembled reliable message to the outbound sink.
func (srv *Server) enqueue(slot *clientSlot, data []byte) {
	srv.outbound.Enqueue(slot.addr, data)
}

func (srv *Server) sendDirect(slot *clientSlot, data []byte) {
	srv.outbound.Enqueue(slot.addr, data)
}

// sendPrint queues a reliable "print" command. A nil slot means broadcast
// to every non-FREE client.
func (srv *Server) sendPrint(slot *clientSlot, text string) {
	cmd := "print \"" + text + "\"\x00"
	if slot != nil {
		srv.sendReliableCommand(slot, cmd)
		return
	}
	for _, s := range srv.slots {
		if s.State() != StateFree {
			srv.sendReliableCommand(s, cmd)
		}
	}
}

func (srv *Server) sendReliableCommand(slot *clientSlot, cmd string) {
	slot.recordReliableCommand(cmd)
	w := protocol.NewWriter(len(cmd) + 16)
	w.WriteUint32(slot.reliableSequence)
	w.WriteString(cmd)
	srv.enqueue(slot, w.Bytes())
}

func atoiOr(s string, def int) int {
	n := 0
	neg := false
	if s == "" {
		return def
	}
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
