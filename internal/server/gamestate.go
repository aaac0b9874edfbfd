package server

import "arenacore/internal/protocol"

// SendGameState assembles and queues the single reliable message that
// primes a connecting (or resynchronising) client: the acked reliable
// stream, any commands still in flight, every non-empty configstring, every
// non-null entity baseline (delta-encoded from a zero state), and the
// checksum feed the client needs to answer a pure-content check.
func (srv *Server) SendGameState(slot *clientSlot) {
	w := protocol.NewWriter(1024)

	w.WriteUint32(slot.lastClientCommand)

	for seq := slot.reliableAcknowledge + 1; seq <= slot.reliableSequence; seq++ {
		w.WriteString(slot.reliableCommands[seq%reliableWindowSize])
	}

	w.WriteByte(byte(protocol.OpServerGamestate))
	w.WriteUint32(slot.reliableSequence)

	for i, cs := range srv.configstrings {
		if cs == "" {
			continue
		}
		w.WriteByte(byte(protocol.OpServerConfigstring))
		w.WriteShort(int16(i))
		w.WriteString(cs)
	}

	for i, baseline := range srv.baselines {
		if baseline == nil {
			continue
		}
		w.WriteByte(byte(protocol.OpServerBaseline))
		w.WriteShort(int16(i))
		w.WriteBytes(deltaXOR(baseline, nil))
	}

	w.WriteByte(byte(protocol.OpServerEOF))
	w.WriteShort(int16(slot.index))
	w.WriteLong(srv.checksumFeed)

	slot.setState(StatePrimed)
	slot.pureAuthentic = false
	slot.gotCP = false
	slot.csUpdated = nil // this message carries every current configstring

	srv.outgoingSequence++
	slot.gamestateMessageNum = srv.outgoingSequence

	srv.enqueue(slot, w.Bytes())
}
