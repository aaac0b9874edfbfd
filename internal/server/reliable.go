package server

import (
	"strconv"
	"strings"
	"time"

	"arenacore/internal/protocol"
)

// Chat overflow guard constants: a per-argument-group size cap with a
// fixed extra budget per "$"-variable expansion, and a separate, smaller
// cap for ut_radio (its own limit plus four characters).
const (
	maxSayStrlen        = 150
	maxRadioStrlen       = 118
	dollarVarPenalty     = 25
	maxDollarVarsCounted = 40
)

// ExecuteClientCommand processes one inbound reliable command: duplicate
// and gap detection, flood accounting, built-in dispatch, the chat-overflow
// exploit guard, and fallthrough to the game module.
func (srv *Server) ExecuteClientCommand(slot *clientSlot, seq uint32, s string, now time.Time) {
	if seq <= slot.lastClientCommand {
		return
	}
	if seq > slot.lastClientCommand+1 {
		srv.dropClient(slot, "Lost reliable commands")
		return
	}
	slot.lastClientCommand = seq
	slot.lastClientCommandString = s

	clientOK := true
	if slot.State() == StateActive {
		nowMs := now.UnixMilli()
		if nowMs < slot.nextReliableTime {
			slot.numcmds++
			if slot.numcmds > srv.cfg.FloodProtect {
				clientOK = false
			}
		} else {
			slot.numcmds = 1
		}
		slot.nextReliableTime = nowMs + 1000
	}

	args := protocol.SplitArgs(s)
	if len(args) == 0 {
		return
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "userinfo":
		srv.handleUserinfoCommand(slot, rest, now)
		return
	case "disconnect":
		srv.dropClient(slot, "disconnected")
		return
	case "cp":
		srv.VerifyPaks(slot, rest)
		return
	case "vdr":
		slot.pureAuthentic = false
		slot.gotCP = false
		return
	case "donedl":
		if slot.State() != StateActive {
			srv.SendGameState(slot)
		}
		return
	case "voip":
		if srv.cfg.VoIPEnabled {
			handleVoipCommand(slot, rest)
		}
		return
	}

	if !clientOK {
		return
	}
	if st := slot.State(); st != StatePrimed && st != StateActive {
		return
	}

	if isChatCommand(cmd) {
		if !chatWithinBudget(cmd, rest) {
			srv.logger.Info("chat dropped due to message length constraints", "client", slot.index, "command", cmd)
			srv.sendPrint(slot, "Chat dropped due to message length constraints.")
			return
		}
	}

	srv.game.ClientCommand(slot.index, args)
}

// handleUserinfoCommand implements the built-in "userinfo" command. An
// update arriving during a flood window is parked on the slot and the
// client told why, rather than silently dropped; Tick installs the parked
// update once the window passes.
func (srv *Server) handleUserinfoCommand(slot *clientSlot, args []string, now time.Time) {
	if len(args) == 0 {
		return
	}
	blob := args[0]
	nowMs := now.UnixMilli()

	if nowMs < slot.nextReliableUserTime {
		slot.userinfoFloodBuffer = blob
		slot.userinfoFloodStaged = true
		srv.sendPrint(slot, "Command delayed due to sv_floodprotect.")
		return
	}

	slot.userinfo = blob
	slot.userinfoFloodStaged = false
	slot.nextReliableUserTime = nowMs + int64(srv.cfg.UserinfoFloodWindow)
	srv.UserinfoChanged(slot)
	srv.game.ClientUserinfoChanged(slot.index)
}

func handleVoipCommand(slot *clientSlot, args []string) {
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "muteall":
		slot.voipMuteAll = true
	case "unmuteall":
		slot.voipMuteAll = false
	case "ignore":
		if len(args) > 1 {
			if id, err := strconv.Atoi(args[1]); err == nil {
				if slot.voipIgnored == nil {
					slot.voipIgnored = make(map[int]bool)
				}
				slot.voipIgnored[id] = true
			}
		}
	case "unignore":
		if len(args) > 1 {
			if id, err := strconv.Atoi(args[1]); err == nil {
				delete(slot.voipIgnored, id)
			}
		}
	}
}

func isChatCommand(cmd string) bool {
	switch cmd {
	case "say", "say_team", "tell", "ut_radio":
		return true
	default:
		return false
	}
}

// chatWithinBudget enforces the per-command size cap, with an extra charge
// per "$"-variable expansion (a client can otherwise smuggle an
// arbitrarily long expanded string behind a short literal one).
func chatWithinBudget(cmd string, args []string) bool {
	text := strings.Join(args, " ")
	limit := maxSayStrlen
	if cmd == "ut_radio" {
		limit = maxRadioStrlen + 4
	}

	dollarCount := strings.Count(text, "$")
	if dollarCount > maxDollarVarsCounted {
		dollarCount = maxDollarVarsCounted
	}

	return len(text)+dollarCount*dollarVarPenalty <= limit
}
