package commands

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Zereker/framing"
	"github.com/Zereker/framing/autotimer"
	"github.com/Zereker/framing/broadcast"
	"github.com/Zereker/framing/capture"
	"github.com/Zereker/framing/internal/config"
	"github.com/Zereker/framing/ratemeter"
	"github.com/Zereker/framing/worker"
)

// RunListen runs the listen command until interrupted.
func RunListen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML or YAML config file")
	addr := fs.String("addr", "", "listen address, overrides the config")
	capturePath := fs.String("capture", "", "capture file, overrides the config")
	if err := fs.Parse(args); err != nil {
		return ExitCommandError
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitCommandError
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *capturePath != "" {
		cfg.Capture = *capturePath
	}

	logger := newLogger(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Listen(ctx, cfg, logger, nil); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("listen failed")
		return ExitCommandError
	}
	return ExitSuccess
}

// relayed is a payload on its way from one connection to the others.
type relayed struct {
	from    string
	payload []byte
}

// Listen serves cfg.Addr until ctx is done. Every received payload is relayed
// to all connections, including the sender when cfg.Echo is set.
// ready, if not nil, is called with the bound address.
func Listen(ctx context.Context, cfg config.Config, logger zerolog.Logger, ready func(net.Addr)) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	flog := framing.ZerologLogger(logger)
	server, err := framing.New(tcpAddr, framing.ServerLoggerOption(flog))
	if err != nil {
		return err
	}
	defer server.Close()

	var rec *capture.Writer
	if cfg.Capture != "" {
		if rec, err = capture.Create(cfg.Capture); err != nil {
			return err
		}
		defer rec.Close()
	}

	hub := broadcast.New[relayed](cfg.Subscribers)
	rate := ratemeter.New(ratemeter.WithInterval(cfg.RateInterval))

	handler := framing.HandlerFunc(func(tcp *net.TCPConn) {
		serveConn(ctx, tcp, cfg, flog, logger, hub, rate, rec)
	})

	if ready != nil {
		ready(server.Addr())
	}
	logger.Info().Str("addr", server.Addr().String()).Msg("listening")
	return server.Serve(ctx, handler)
}

func serveConn(ctx context.Context, tcp *net.TCPConn, cfg config.Config, flog framing.Logger,
	logger zerolog.Logger, hub *broadcast.Broadcast[relayed], rate *ratemeter.Meter, rec *capture.Writer) {

	var conn *framing.Conn
	remote := tcp.RemoteAddr().String()
	opts := append(cfg.ConnOptions(),
		framing.LoggerOption(flog),
		framing.OnMessageOption(func(payload []byte) error {
			p := bytes.Clone(payload)
			if rec != nil {
				_ = rec.RecordFrom(conn.ID(), remote, capture.DirectionIn, p)
			}
			if r, ok := rate.Auto(); ok {
				logger.Info().Float64("msgs_per_sec", r).Msg("rate")
			}
			hub.TrySend(relayed{from: conn.ID(), payload: p})
			return nil
		}),
	)

	c, err := framing.NewConn(tcp, opts...)
	if err != nil {
		_ = tcp.Close()
		logger.Error().Err(err).Msg("rejecting connection")
		return
	}
	conn = c
	defer autotimer.Start(flog, "session "+conn.ID()).Stop()

	sub := hub.Subscribe()
	defer sub.Close()

	relay := worker.Spawn(true, func(exit <-chan struct{}) {
		for {
			select {
			case <-exit:
				return
			case m := <-sub.C():
				if m.from == conn.ID() && !cfg.Echo {
					continue
				}
				if err := conn.Write(m.payload); err != nil {
					logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("relay dropped")
					continue
				}
				if rec != nil {
					_ = rec.RecordFrom(conn.ID(), remote, capture.DirectionOut, m.payload)
				}
			}
		}
	})
	defer relay.Stop()

	_ = conn.Run(ctx)
	logger.Info().Str("conn_id", conn.ID()).Interface("stats", conn.Stats()).Msg("session ended")
}
