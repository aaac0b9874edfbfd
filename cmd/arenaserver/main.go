package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arenacore/internal/banstore"
	"arenacore/internal/config"
	"arenacore/internal/server"
)

const ConfigPath = "config/arenaserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("ARENACORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))
	logger := slog.Default()

	slog.Info("arenacore server starting", "bind", cfg.BindAddress, "port", cfg.Port, "tick_rate", cfg.TickRate, "pure", cfg.PureMode)

	store, err := banstore.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	if err := banstore.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	rules, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading ban list: %w", err)
	}
	slog.Info("ban list loaded", "rules", len(rules))

	conn, err := net.ListenUDP("udp", &net.UDPAddr{
		IP:   net.ParseIP(cfg.BindAddress),
		Port: cfg.Port,
	})
	if err != nil {
		return fmt.Errorf("binding udp socket: %w", err)
	}
	defer conn.Close()

	sink := newUDPSink(conn, cfg, logger)
	go sink.writeLoop(ctx)

	srv := server.NewServer(cfg, logger,
		&loggingGame{logger: logger},
		&masterClient{logger: logger},
		staticContent{cfg: cfg.Content},
		sink,
	)
	installBanRules(srv, rules)

	inbound := make(chan server.InboundDatagram, 256)
	go readLoop(ctx, conn, inbound, logger)

	return tickLoop(ctx, srv, inbound, cfg.TickRate)
}

func installBanRules(srv *server.Server, rules []banstore.Rule) {
	converted := make([]server.BanRule, len(rules))
	for i, r := range rules {
		converted[i] = server.BanRule{CIDR: r.CIDR, IsException: r.IsException}
	}
	srv.SetBanRules(converted)
}

// readLoop is the raw socket I/O collaborator: it does nothing but read
// datagrams off the wire and forward them to the tick goroutine. A datagram
// that arrives while the channel is full is dropped; UDP already promises
// nothing better.
func readLoop(ctx context.Context, conn *net.UDPConn, inbound chan<- server.InboundDatagram, logger *slog.Logger) {
	buf := make([]byte, 65536)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("udp read failed", "error", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		dg := server.InboundDatagram{
			From: server.Addr{IP: addr.Addr().Unmap(), Port: addr.Port()},
			Data: data,
		}
		select {
		case inbound <- dg:
		default:
			logger.Warn("inbound queue full, dropping datagram", "from", addr)
		}
	}
}

// tickLoop owns every piece of mutable server state: drain inbound, advance
// the engine, emit snapshots, sleep until whichever of the next tick or the
// next paced send comes first.
func tickLoop(ctx context.Context, srv *server.Server, inbound <-chan server.InboundDatagram, tickRate int) error {
	interval := time.Second / time.Duration(tickRate)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	nextTick := time.Now().Add(interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		now := time.Now()
		var batch []server.InboundDatagram
	drain:
		for {
			select {
			case dg := <-inbound:
				batch = append(batch, dg)
			default:
				break drain
			}
		}

		srv.Tick(now, batch)
		nextSend := srv.SendClientMessages(now)

		for !nextTick.After(now) {
			nextTick = nextTick.Add(interval)
		}
		wake := nextTick
		if nextSend.Before(wake) && nextSend.After(now) {
			wake = nextSend
		}
		timer.Reset(time.Until(wake))
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
