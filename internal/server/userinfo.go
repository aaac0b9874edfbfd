package server

import (
	"strconv"

	"arenacore/internal/protocol"
)

const (
	maxNameLength = 32

	minRate        = 1000
	maxRate        = 100000
	defaultRate    = 5000
	lanForcedRate  = maxRate
	defaultHandicap = "100"
)

// UserinfoChanged extracts and clamps the derived settings carried in a
// slot's userinfo blob, then reinstalls the canonical "ip" key. Unlike most
// of this package it can itself drop the client (an oversized userinfo
// string is fatal to the connection, not just to this one field).
func (srv *Server) UserinfoChanged(slot *clientSlot) {
	info := slot.userinfo

	slot.name = clampString(protocol.InfoValueForKey(info, "name"), maxNameLength)

	if slot.addr.IsLAN() && !srv.cfg.Public && srv.cfg.LANForceRate {
		slot.rate = lanForcedRate
	} else {
		slot.rate = defaultRate
		if v := protocol.InfoValueForKey(info, "rate"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				slot.rate = int32(clampInt(parsed, minRate, maxRate))
			}
		}
	}

	slot.handicap = defaultHandicap
	if v := protocol.InfoValueForKey(info, "handicap"); v != "" {
		if len(v) <= 4 {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
				slot.handicap = v
			}
		}
	}

	snaps := srv.cfg.TickRate
	if v := protocol.InfoValueForKey(info, "snaps"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			snaps = parsed
		}
	}
	snaps = clampInt(snaps, 1, srv.cfg.TickRate)
	newSnapshotMsec := int32(1000 / snaps)
	if newSnapshotMsec != slot.snapshotMsec {
		slot.lastSnapshotTime = 0
	}
	slot.snapshotMsec = newSnapshotMsec

	ip := "localhost"
	if !slot.addr.IsLAN() {
		ip = slot.addr.String()
	}
	withIP := protocol.InfoSetValueForKey(info, "ip", ip)
	if len(withIP) >= protocol.MaxInfoString {
		srv.dropClient(slot, "userinfo string length exceeded")
		return
	}
	slot.userinfo = withIP
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
