package server

import (
	"fmt"
	"strconv"
	"time"

	"arenacore/internal/protocol"
)

// DirectConnect implements the connect handshake: ban check, protocol
// version check, reconnect-cooldown scan, challenge validation, ping/IP-cap
// policy, slot selection, and the GameModule.ClientConnect hook. Returns
// the out-of-band reply to send (connectResponse or a rejection print), or
// nil to silently drop.
func (srv *Server) DirectConnect(from Addr, userinfo string, now time.Time) []byte {
	if srv.bans.IsBanned(from) {
		return protocol.FormatOOB("print \"You are banned from this server.\n\"")
	}

	protocolStr := protocol.InfoValueForKey(userinfo, "protocol")
	clientProtocol, err := strconv.Atoi(protocolStr)
	compat := false
	if err != nil || clientProtocol != srv.cfg.Protocol {
		if srv.cfg.AllowLegacyProtocol && err == nil && clientProtocol == srv.cfg.Protocol-1 {
			compat = true
		} else {
			return protocol.FormatOOB(fmt.Sprintf("print \"Server uses protocol version %d.\n\"", srv.cfg.Protocol))
		}
	}

	challengeStr := protocol.InfoValueForKey(userinfo, "challenge")
	challenge, _ := strconv.Atoi(challengeStr)
	qportStr := protocol.InfoValueForKey(userinfo, "qport")
	qport, _ := strconv.Atoi(qportStr)

	var reuse *clientSlot
	for _, slot := range srv.slots {
		st := slot.State()
		if st != StateConnected && st != StatePrimed && st != StateActive {
			continue
		}
		if slot.addr.BaseEqual(from) && (slot.qport == uint16(qport) || slot.addr.Port == from.Port) {
			elapsed := now.Sub(time.UnixMilli(slot.lastConnectTime))
			if elapsed < time.Duration(srv.cfg.ReconnectCooldown)*time.Second {
				return nil
			}
			reuse = slot
			break
		}
	}

	ip := "localhost"
	if !from.IsLAN() {
		ip = from.String()
	}
	withIP := protocol.InfoSetValueForKey(userinfo, "ip", ip)
	if len(withIP) >= protocol.MaxInfoString {
		return protocol.FormatOOB("print \"Userinfo string length exceeded.  Game details are too long.\n\"")
	}
	userinfo = withIP

	var rec *challengeRecord
	if !from.IsLAN() {
		rec = srv.challenges.findByChallenge(from, int32(challenge))
		if rec == nil {
			return protocol.FormatOOB("print \"No or bad challenge for address.\n\"")
		}
		if rec.refused {
			return nil
		}
	}

	if !from.IsLAN() {
		ping := now.Sub(rec.pingTime)

		count := 0
		for _, slot := range srv.slots {
			if slot.State() != StateFree && slot.addr.BaseEqual(from) {
				count++
			}
		}
		if count >= srv.cfg.ClientsPerIP {
			rec.refused = true
			return protocol.FormatOOB("print \"Too many connections from the same IP.\n\"")
		}

		if srv.cfg.MinPing > 0 && ping < time.Duration(srv.cfg.MinPing)*time.Millisecond {
			rec.refused = true
			return protocol.FormatOOB("print \"Server is for high pings only.\n\"")
		}
		if srv.cfg.MaxPing > 0 && ping > time.Duration(srv.cfg.MaxPing)*time.Millisecond {
			rec.refused = true
			return protocol.FormatOOB("print \"Server is for low pings only.\n\"")
		}
	}

	slot := reuse
	if slot == nil {
		startIndex := srv.cfg.PrivateClients
		if srv.cfg.PrivatePassword != "" && protocol.InfoValueForKey(userinfo, "password") == srv.cfg.PrivatePassword {
			startIndex = 0
		}

		for i := startIndex; i < len(srv.slots); i++ {
			if srv.slots[i].State() == StateFree {
				slot = srv.slots[i]
				break
			}
		}

		if slot == nil {
			if from.IsLAN() && srv.allPublicSlotsAreBots(startIndex) {
				slot = srv.evictHighestIndexSlot()
			} else if from.IsLAN() {
				panic("server is full on local connect")
			} else {
				return protocol.FormatOOB("print \"Server is full.\n\"")
			}
		}
	}

	wasEmpty := srv.connectedCount() == 0

	slot.reset()
	slot.addr = from
	slot.qport = uint16(qport)
	slot.compat = compat
	slot.challenge = int32(challenge)
	slot.userinfo = userinfo
	slot.setState(StateConnected)
	slot.lastConnectTime = now.UnixMilli()
	slot.lastPacketTime = now.UnixMilli()
	slot.gamestateMessageNum = -1

	if rec != nil {
		rec.connected = true
	}

	if rejected, ok := srv.game.ClientConnect(slot.index, true, false); !ok {
		slot.reset()
		if rejected == "" {
			rejected = "Connection refused."
		}
		return protocol.FormatOOB(fmt.Sprintf("print \"%s\n\"", rejected))
	}

	srv.UserinfoChanged(slot)

	if wasEmpty || srv.connectedCount() == len(srv.slots) {
		srv.heartbeat.Heartbeat()
	}

	return protocol.FormatOOB(fmt.Sprintf("connectResponse %d\n", slot.challenge))
}

// connectedCount counts clients at CONNECTED or beyond. ZOMBIE slots are
// excluded: a just-dropped client lingering to absorb stragglers is not a
// connection, and counting it would suppress the heartbeat fired when the
// last real client leaves.
func (srv *Server) connectedCount() int {
	n := 0
	for _, slot := range srv.slots {
		if st := slot.State(); st != StateFree && st != StateZombie {
			n++
		}
	}
	return n
}

func (srv *Server) allPublicSlotsAreBots(startIndex int) bool {
	for i := startIndex; i < len(srv.slots); i++ {
		if srv.slots[i].State() != StateFree && !srv.slots[i].isBot {
			return false
		}
	}
	return true
}

func (srv *Server) evictHighestIndexSlot() *clientSlot {
	for i := len(srv.slots) - 1; i >= 0; i-- {
		if srv.slots[i].State() != StateFree {
			srv.dropClient(srv.slots[i], "was kicked to make room for a human player")
			return srv.slots[i]
		}
	}
	return nil
}
