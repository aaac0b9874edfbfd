package protocol

// ClientOp identifies the kind of block an in-band client-to-server
// message carries. A single datagram may carry several blocks back to
// back, terminated by OpClientEOF.
type ClientOp byte

const (
	OpClientCommand  ClientOp = iota // clc_clientCommand: seq(u32) + string
	OpClientMove                     // clc_move: delta-encoded usercmd batch
	OpClientMoveNoDelta              // clc_moveNoDelta: same batch, but the client asks for a non-delta next snapshot
	OpClientVoIPOpus                 // clc_voipOpus: opaque payload, routed not parsed
	OpClientVoIPSpeex                // clc_voipSpeex: accepted-and-discarded for back-compat
	OpClientEOF                      // clc_EOF: terminates the datagram's block sequence
)

// ServerOp identifies a block written into a reliable message sent to a
// client (gamestate, configstring updates, snapshots).
type ServerOp byte

const (
	OpServerGamestate     ServerOp = iota // svc_gamestate: reliableSequence follows
	OpServerConfigstring                 // svc_configstring: index(u16) + string
	OpServerBaseline                     // svc_baseline: delta-encoded entity state
	OpServerSnapshot                     // svc_snapshot: serverTime + delta reference; no entity payload is written
	OpServerVoIP                         // svc_voip: sender slot + opaque voice payload
	OpServerEOF                          // svc_EOF: terminates the message's block sequence
)

// InBandHeader is the fixed prefix of every in-band datagram: the client's
// content epoch and the two acknowledgement counters that key the reliable
// command channel and the delta-usercmd decode.
type InBandHeader struct {
	ServerID            int32
	MessageAcknowledge  int32
	ReliableAcknowledge int32
}

// ReadInBandHeader reads the fixed header all in-band datagrams start with.
func ReadInBandHeader(r *Reader) (InBandHeader, error) {
	var h InBandHeader
	v, err := r.ReadLong()
	if err != nil {
		return h, err
	}
	h.ServerID = v
	if v, err = r.ReadLong(); err != nil {
		return h, err
	}
	h.MessageAcknowledge = v
	if v, err = r.ReadLong(); err != nil {
		return h, err
	}
	h.ReliableAcknowledge = v
	return h, nil
}

// WriteInBandHeader writes the fixed header.
func WriteInBandHeader(w *Writer, h InBandHeader) {
	w.WriteLong(h.ServerID)
	w.WriteLong(h.MessageAcknowledge)
	w.WriteLong(h.ReliableAcknowledge)
}
