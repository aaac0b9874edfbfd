package server

import (
	"hash/fnv"

	"arenacore/internal/protocol"
)

// usercmdDataSize is the fixed width of the opaque per-frame input payload
// this package delta-codes. The game module is the only thing that
// interprets its contents (movement, view angles, button bits).
const usercmdDataSize = 16

// maxPacketUserCmds bounds how many usercmds a single move/moveNoDelta
// message may carry.
const maxPacketUserCmds = 32

const pingHistorySize = 32

// deltaKey derives the decode key that entangles a usercmd batch with the
// server's current content epoch and reliable-command history, so a
// replayed batch from a different epoch fails to decode. Perturbing any of
// checksumFeed, messageAcknowledge, or the last acked reliable command
// changes the key and hence the decode.
func deltaKey(checksumFeed int32, messageAcknowledge int32, lastAckReliableCommandString string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(lastAckReliableCommandString))
	return uint32(checksumFeed) ^ uint32(messageAcknowledge) ^ h.Sum32()
}

// keystream expands key into an n-byte pseudorandom stream via a simple
// linear congruential generator, the same constants used by Numerical
// Recipes' quick-and-dirty LCG (ranqd1).
func keystream(key uint32, n int) []byte {
	out := make([]byte, n)
	state := key
	for i := 0; i < n; i++ {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}

// deltaXOR produces the byte-wise XOR of a and b. The result is len(a)
// bytes long: a shorter b is treated as zero-padded, a longer b is
// truncated. XOR is its own inverse, so the same function
// serves as both the delta encode and delta decode step.
func deltaXOR(a, b []byte) []byte {
	n := len(a)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var bb byte
		if i < len(b) {
			bb = b[i]
		}
		out[i] = a[i] ^ bb
	}
	return out
}

// encodeUserCmdData produces the wire bytes for cur, delta-coded against
// prev and keyed by key.
func encodeUserCmdData(cur, prev []byte, key uint32) []byte {
	return deltaXOR(deltaXOR(cur, prev), keystream(key, len(cur)))
}

// decodeUserCmdData recovers cur from wire bytes produced by
// encodeUserCmdData with the same prev and key.
func decodeUserCmdData(wire, prev []byte, key uint32) []byte {
	return deltaXOR(deltaXOR(wire, keystream(key, len(wire))), prev)
}

// HandleUserCmdBatch implements the user-command pipeline: delta-key
// decoding, ping sampling, the PRIMED→ACTIVE transition, pure-mode gating,
// and ordered dispatch to GameModule.ClientThink. delta reports whether the
// client asked for its next snapshot to be delta-compressed against the
// frame it just acknowledged (a move) or sent from scratch (a moveNoDelta).
func (srv *Server) HandleUserCmdBatch(slot *clientSlot, r *protocol.Reader, delta bool) error {
	cmdCountByte, err := r.ReadByte()
	if err != nil {
		return err
	}
	cmdCount := int(cmdCountByte)
	if cmdCount < 1 || cmdCount > maxPacketUserCmds {
		srv.logger.Debug("dropping usercmd batch with bad cmdCount", "client", slot.index, "cmdCount", cmdCount)
		return nil
	}

	if delta {
		slot.deltaMessage = slot.messageAcknowledge
	} else {
		slot.deltaMessage = -1
	}

	key := deltaKey(srv.checksumFeed, slot.messageAcknowledge, slot.reliableCommands[slot.reliableAcknowledge%reliableWindowSize])

	cmds := make([]UserCmd, cmdCount)
	var prevData []byte
	for i := 0; i < cmdCount; i++ {
		serverTime, err := r.ReadLong()
		if err != nil {
			return err
		}
		wire, err := r.ReadBytes(usercmdDataSize)
		if err != nil {
			return err
		}
		data := decodeUserCmdData(wire, prevData, key)
		cmds[i] = UserCmd{ServerTime: serverTime, Data: data}
		prevData = data
	}

	if slot.lastRecordedAckFrame != slot.messageAcknowledge {
		slot.pingSamples[slot.messageAcknowledge%pingHistorySize] = slot.lastPacketTime
		slot.lastRecordedAckFrame = slot.messageAcknowledge
	}

	if srv.cfg.PureMode && !slot.gotCP {
		if slot.State() == StateActive {
			srv.SendGameState(slot)
		}
		return nil
	}

	if slot.State() == StatePrimed {
		slot.setState(StateActive)
		// Configstring changes are not pushed to PRIMED clients; deliver
		// anything that changed since the gamestate went out.
		srv.updateConfigstrings(slot)
		srv.game.ClientBegin(slot.index)
		slot.lastUsercmd = cmds[0]
		if srv.cfg.AutoRecordDemo && srv.demos != nil && !slot.isBot {
			srv.demos.BeginRecording(slot.index)
		}
	}

	if srv.cfg.PureMode && !slot.pureAuthentic {
		srv.dropClient(slot, "Cannot validate pure client!")
		return nil
	}

	if slot.State() != StateActive {
		slot.deltaMessage = -1
		return nil
	}

	ceiling := cmds[len(cmds)-1].ServerTime
	for _, cmd := range cmds {
		if cmd.ServerTime > ceiling {
			continue
		}
		if cmd.ServerTime <= slot.lastUsercmd.ServerTime {
			continue
		}
		srv.game.ClientThink(slot.index, cmd)
		slot.lastUsercmd = cmd
	}

	return nil
}
