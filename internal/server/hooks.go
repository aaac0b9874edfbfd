// Package server implements the client lifecycle and packet protocol
// engine: the challenge/connect handshake, the per-client connection state
// machine, reliable command sequencing, the user-command pipeline,
// pure-content verification, and gamestate emission.
//
// Concurrency model: single-threaded cooperative. Everything in this
// package is mutated only from the goroutine that calls Server.Tick; there
// is no lock anywhere in the core for that reason. ClientSlot.state is kept
// as an atomic so that an external read-only observer (an admin/status
// handler, a metrics exporter) may read it without synchronizing with the
// tick goroutine.
package server

// GameModule is the only coupling to gameplay: physics, rules, and scoring
// live entirely outside this package and are reached through these hook
// points.
type GameModule interface {
	// ClientConnect is called once a slot has been provisionally assigned.
	// Returning ok=false aborts the connect: the slot is returned to FREE
	// and rejected (or a generic refusal when it is empty) is relayed to
	// the client.
	ClientConnect(slot int, firstTime, isBot bool) (rejected string, ok bool)
	ClientDisconnect(slot int)
	ClientBegin(slot int)
	ClientUserinfoChanged(slot int)
	ClientThink(slot int, cmd UserCmd)
	ClientCommand(slot int, args []string)
}

// MasterHeartbeat is the master-server heartbeat transport, notified on
// population edges (first client connects, last slot fills).
type MasterHeartbeat interface {
	Heartbeat()
}

// ContentStore exposes the checksums pure-content verification validates
// against. It is populated from the file/pack content store, which is out
// of scope here.
type ContentStore interface {
	CgameChecksum() int32
	UIChecksum() int32
	PakChecksums() []int32 // at most 1024 entries
}

// DemoRecorder is the demo recording collaborator. Recording itself is out
// of scope; the core only tells the recorder when a client enters the world
// (with auto-record enabled) and when it leaves.
type DemoRecorder interface {
	BeginRecording(slot int)
	StopRecording(slot int)
}

// OutboundSink is the send side of the raw socket I/O collaborator: every
// reliable message and gamestate blob this package produces is handed to
// Enqueue rather than written directly, so the core never blocks on a slow
// peer's socket.
type OutboundSink interface {
	Enqueue(addr Addr, data []byte)
}

