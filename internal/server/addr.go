package server

import "net/netip"

// Addr is a remote peer's network address as seen by the acceptor: the
// socket-level IP and port only. The peer-chosen qport, which disambiguates
// multiple clients behind the same NAT gateway, is carried in userinfo and
// stored on the client slot, not here.
type Addr struct {
	IP   netip.Addr
	Port uint16
}

func (a Addr) String() string {
	return netip.AddrPortFrom(a.IP, a.Port).String()
}

// BaseEqual reports whether two addresses share the same IP, ignoring
// port. Used together with qport to recognize a reconnecting peer whose
// source port changed.
func (a Addr) BaseEqual(b Addr) bool {
	return a.IP == b.IP
}

// IsLAN reports whether the address is within private, loopback, or
// link-local ranges, per RFC 1918 / RFC 4193 / RFC 3927.
func (a Addr) IsLAN() bool {
	ip := a.IP
	if ip.Is4In6() {
		ip = ip.Unmap()
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
