package server

import (
	"strconv"

	"arenacore/internal/protocol"
)

// VerifyPaks implements the pure-content verification protocol: the "cp"
// reliable command, laid out as
//
//	cp <serverId> <cgameChk> <uiChk> @ <chk_1> ... <chk_n> <folded>
//
// where folded = checksumFeed XOR chk_1 XOR ... XOR chk_n XOR n.
func (srv *Server) VerifyPaks(slot *clientSlot, args []string) {
	if !srv.cfg.PureMode {
		// A non-pure server has nothing to verify; clients send cp
		// regardless, so this must be a complete no-op.
		return
	}
	if len(args) < 1 {
		return
	}
	serverID, err := strconv.Atoi(args[0])
	if err != nil {
		return
	}
	if int32(serverID) < srv.checksumFeedServerID {
		// This cp predates the current content epoch (sent before a map
		// restart finished propagating). Silently ignore; do not touch
		// gotCP or pureAuthentic. Apart from a missing or non-numeric
		// serverId above, this is the only failure that returns early:
		// everything below flows to the same gotCP/snapshot/drop.
		return
	}

	accepted := len(args) >= 6
	if accepted {
		cgameChk, err1 := strconv.Atoi(args[1])
		uiChk, err2 := strconv.Atoi(args[2])
		accepted = err1 == nil && err2 == nil &&
			int32(cgameChk) == srv.content.CgameChecksum() &&
			int32(uiChk) == srv.content.UIChecksum() &&
			args[3] == "@"
	}

	if accepted {
		chkArgs := args[4 : len(args)-1]
		foldedArg := args[len(args)-1]

		seen := make(map[int32]bool, len(chkArgs))
		pakSet := srv.content.PakChecksums()
		chks := make([]int32, 0, len(chkArgs))
		for _, a := range chkArgs {
			v, err := strconv.Atoi(a)
			if err != nil {
				accepted = false
				break
			}
			chk := int32(v)
			if seen[chk] {
				accepted = false
				break
			}
			seen[chk] = true

			if !containsChecksum(pakSet, chk) {
				accepted = false
				break
			}
			chks = append(chks, chk)
		}

		if accepted {
			folded, err := strconv.Atoi(foldedArg)
			if err != nil || int32(folded) != protocol.FoldChecksums(srv.checksumFeed, chks) {
				accepted = false
			}
		}
	}

	slot.gotCP = true

	if accepted {
		slot.pureAuthentic = true
		return
	}

	slot.pureAuthentic = false
	srv.sendSnapshot(slot, slot.lastPacketTime)
	srv.dropClient(slot, "Unpure client detected. Invalid .PK3 files referenced!")
}

func containsChecksum(set []int32, v int32) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
