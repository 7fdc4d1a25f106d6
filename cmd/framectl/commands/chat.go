package commands

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Zereker/framing"
	"github.com/Zereker/framing/capture"
	"github.com/Zereker/framing/internal/config"
)

// RunChat runs the chat command: an interactive client for a framed server.
func RunChat(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML or YAML config file for frame parameters")
	addr := fs.String("addr", "", "server address, overrides the config")
	capturePath := fs.String("capture", "", "record the session to this file")
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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "frame> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          stdout,
		Stderr:          stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to create readline: %v\n", err)
		return ExitCommandError
	}
	defer rl.Close()

	var rec *capture.Writer
	if *capturePath != "" {
		if rec, err = capture.Create(*capturePath); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitCommandError
		}
		defer rec.Close()
	}

	logger := newLogger(rl.Stderr())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := dialChat(ctx, cfg, framing.ZerologLogger(logger), rec, rl.Stdout())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := sess.send([]byte(line)); err != nil {
			fmt.Fprintf(rl.Stderr(), "send failed: %v\n", err)
			if sess.conn.IsClosed() {
				break
			}
		}
	}

	cancel()
	<-sess.done
	return ExitSuccess
}

// chatSession is a dialed framed connection printing what it receives.
type chatSession struct {
	conn *framing.Conn
	rec  *capture.Writer
	done chan error
}

func dialChat(ctx context.Context, cfg config.Config, logger framing.Logger, rec *capture.Writer, out io.Writer) (*chatSession, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	raw, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	s := &chatSession{rec: rec, done: make(chan error, 1)}
	opts := append(cfg.ConnOptions(),
		framing.LoggerOption(logger),
		framing.OnMessageOption(func(payload []byte) error {
			if rec != nil {
				_ = rec.RecordFrom(s.conn.ID(), s.conn.Addr().String(), capture.DirectionIn, bytes.Clone(payload))
			}
			fmt.Fprintf(out, "< %s\n", render(payload))
			return nil
		}),
	)
	if s.conn, err = framing.NewConn(raw, opts...); err != nil {
		_ = raw.Close()
		return nil, err
	}

	go func() {
		s.done <- s.conn.Run(ctx)
	}()
	return s, nil
}

func (s *chatSession) send(payload []byte) error {
	if err := s.conn.WriteTimeout(payload, 5*time.Second); err != nil {
		return err
	}
	if s.rec != nil {
		_ = s.rec.RecordFrom(s.conn.ID(), s.conn.Addr().String(), capture.DirectionOut, payload)
	}
	return nil
}
