package main

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"arenacore/internal/config"
	"arenacore/internal/server"
)

// udpSink is the send side of the socket collaborator: the engine enqueues,
// a single writer goroutine drains. Enqueue never blocks; a full queue
// drops the datagram, which over UDP the peer must tolerate anyway.
type udpSink struct {
	conn         *net.UDPConn
	queue        chan outboundDatagram
	writeTimeout time.Duration
	logger       *slog.Logger
}

type outboundDatagram struct {
	to   netip.AddrPort
	data []byte
}

func newUDPSink(conn *net.UDPConn, cfg config.Server, logger *slog.Logger) *udpSink {
	timeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		timeout = 2 * time.Second
	}
	return &udpSink{
		conn:         conn,
		queue:        make(chan outboundDatagram, cfg.SendQueueSize),
		writeTimeout: timeout,
		logger:       logger,
	}
}

func (s *udpSink) Enqueue(addr server.Addr, data []byte) {
	dg := outboundDatagram{to: netip.AddrPortFrom(addr.IP, addr.Port), data: data}
	select {
	case s.queue <- dg:
	default:
		s.logger.Warn("outbound queue full, dropping datagram", "to", dg.to)
	}
}

func (s *udpSink) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case dg := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if _, err := s.conn.WriteToUDPAddrPort(dg.data, dg.to); err != nil {
				s.logger.Warn("udp write failed", "to", dg.to, "error", err)
			}
		}
	}
}

// loggingGame is the game module this binary ships with: it accepts every
// client and logs the hook traffic. A real deployment swaps in a gameplay
// implementation of server.GameModule.
type loggingGame struct {
	logger *slog.Logger
}

func (g *loggingGame) ClientConnect(slot int, firstTime, isBot bool) (string, bool) {
	g.logger.Info("client connect", "slot", slot, "first_time", firstTime, "bot", isBot)
	return "", true
}

func (g *loggingGame) ClientDisconnect(slot int) {
	g.logger.Info("client disconnect", "slot", slot)
}

func (g *loggingGame) ClientBegin(slot int) {
	g.logger.Info("client entered world", "slot", slot)
}

func (g *loggingGame) ClientUserinfoChanged(slot int) {}

func (g *loggingGame) ClientThink(slot int, cmd server.UserCmd) {}

func (g *loggingGame) ClientCommand(slot int, args []string) {
	g.logger.Debug("client command", "slot", slot, "args", args)
}

// masterClient stands in for the master-server heartbeat transport, which
// is out of scope for the engine; population-edge heartbeats land here.
type masterClient struct {
	logger *slog.Logger
}

func (m *masterClient) Heartbeat() {
	m.logger.Info("heartbeat to master")
}

// staticContent serves the pure-verification checksums straight from
// configuration.
type staticContent struct {
	cfg config.ContentConfig
}

func (c staticContent) CgameChecksum() int32  { return c.cfg.CgameChecksum }
func (c staticContent) UIChecksum() int32     { return c.cfg.UIChecksum }
func (c staticContent) PakChecksums() []int32 { return c.cfg.PakChecksums }
