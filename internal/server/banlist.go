package server

import "net/netip"

// banEntry is one ordered rule in the ban list. Exceptions are evaluated
// first and short-circuit a later ban match.
type banEntry struct {
	CIDR        netip.Prefix
	IsException bool
}

// banList is an ordered sequence of CIDR rules, loadable from
// internal/banstore.
type banList struct {
	entries []banEntry
}

func newBanList(entries []banEntry) *banList {
	return &banList{entries: entries}
}

// IsBanned reports whether addr is banned, checking every exception first.
func (b *banList) IsBanned(addr Addr) bool {
	ip := addr.IP
	if ip.Is4In6() {
		ip = ip.Unmap()
	}

	for _, e := range b.entries {
		if e.IsException && e.CIDR.Contains(ip) {
			return false
		}
	}
	for _, e := range b.entries {
		if !e.IsException && e.CIDR.Contains(ip) {
			return true
		}
	}
	return false
}

// Replace swaps in a new rule set, used by SetBanRules.
func (b *banList) Replace(entries []banEntry) {
	b.entries = entries
}

// BanRule is one externally-loaded CIDR rule. Rule order does not change
// the result: every exception is checked before any ban.
type BanRule struct {
	CIDR        netip.Prefix
	IsException bool
}

// SetBanRules replaces the server's ban list with rules, typically loaded
// from internal/banstore at startup or on an operator-triggered reload.
func (srv *Server) SetBanRules(rules []BanRule) {
	entries := make([]banEntry, len(rules))
	for i, r := range rules {
		entries[i] = banEntry{CIDR: r.CIDR, IsException: r.IsException}
	}
	srv.bans.Replace(entries)
}
