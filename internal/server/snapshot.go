package server

import (
	"time"

	"arenacore/internal/protocol"
)

// sendSnapshot assembles and queues one snapshot message for slot: the ack
// of the client's reliable stream, any server commands still in flight, and
// a snapshot block stamped with serverTime. The snapshot payload itself
// (player state, visible entities) belongs to the game module; this package
// only frames it and decides whether the client may delta against an
// earlier frame.
func (srv *Server) sendSnapshot(slot *clientSlot, serverTime int64) {
	w := protocol.NewWriter(256)

	w.WriteUint32(slot.lastClientCommand)

	for seq := slot.reliableAcknowledge + 1; seq <= slot.reliableSequence; seq++ {
		w.WriteString(slot.reliableCommands[seq%reliableWindowSize])
	}

	for _, vp := range slot.voipQueue {
		w.WriteByte(byte(protocol.OpServerVoIP))
		w.WriteByte(byte(vp.sender))
		w.WriteShort(int16(len(vp.data)))
		w.WriteBytes(vp.data)
	}
	slot.voipQueue = nil

	w.WriteByte(byte(protocol.OpServerSnapshot))
	w.WriteLong(int32(serverTime))

	// Delta reference: 0 means "from scratch" (the client just got a
	// gamestate, or explicitly requested no delta); otherwise the number of
	// frames back the reference snapshot sits.
	if slot.State() != StateActive || slot.deltaMessage <= 0 {
		w.WriteByte(0)
	} else {
		delta := srv.outgoingSequence - slot.deltaMessage
		if delta < 1 || delta >= pingHistorySize {
			delta = 0
		}
		w.WriteByte(byte(delta))
	}

	w.WriteByte(byte(protocol.OpServerEOF))

	srv.outgoingSequence++
	srv.enqueue(slot, w.Bytes())

	slot.lastSnapshotSize = int32(w.Len())
}

// SendClientMessages walks every non-FREE, non-ZOMBIE client and emits a
// snapshot to each one whose pacing window has elapsed, then returns the
// earliest instant any client is next due. The outer loop uses that return
// to sleep or multiplex; nothing in here blocks.
//
// Pacing per client is the larger of its requested snapshot interval
// (snapshotMsec, derived from "snaps" in userinfo) and its rate budget:
// a client that asked for 50000 bytes/sec does not get 20 snapshots/sec of
// 4KB each no matter what its snaps setting says.
func (srv *Server) SendClientMessages(now time.Time) time.Time {
	nowMs := now.UnixMilli()
	next := nowMs + 1000

	for _, slot := range srv.slots {
		st := slot.State()
		if st == StateFree || st == StateZombie {
			continue
		}

		interval := int64(slot.snapshotMsec)
		if interval <= 0 {
			interval = 1000 / int64(srv.cfg.TickRate)
		}
		if !slot.addr.IsLAN() && slot.rate > 0 && slot.lastSnapshotSize > 0 {
			rateMs := int64(slot.lastSnapshotSize) * 1000 / int64(slot.rate)
			if rateMs > interval {
				interval = rateMs
			}
		}

		due := slot.lastSnapshotTime + interval
		if nowMs < due {
			if due < next {
				next = due
			}
			continue
		}

		srv.sendSnapshot(slot, nowMs)
		slot.lastSnapshotTime = nowMs
		if d := nowMs + interval; d < next {
			next = d
		}
	}

	return time.UnixMilli(next)
}
