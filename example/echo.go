package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Zereker/framing"
)

type Server struct {
	connID int64

	sync.RWMutex
	connections map[int64]*framing.Conn
}

func newHandler(connID int64) *Server {
	return &Server{connID: connID, connections: make(map[int64]*framing.Conn)}
}

func (s *Server) Handle(conn *net.TCPConn) {
	connID := atomic.AddInt64(&s.connID, 1)

	errorOption := framing.OnErrorOption(func(err error) framing.ErrorAction {
		slog.Error("connection error", "error", err)
		return framing.Disconnect
	})

	// Echo. The payload is reused by the decoder after the callback returns.
	onMessageOption := framing.OnMessageOption(func(payload []byte) error {
		conn := s.getConn(connID)
		return conn.Write(bytes.Clone(payload))
	})

	newConn, err := framing.NewConn(conn,
		framing.LengthBytesOption(2),
		framing.ChecksumBytesOption(4),
		errorOption,
		onMessageOption,
	)
	if err != nil {
		panic(err)
	}

	s.addConn(connID, newConn)

	if err = newConn.Run(context.Background()); err != nil {
		s.deleteConn(connID)
	}
}

func (s *Server) addConn(connID int64, conn *framing.Conn) {
	s.Lock()
	defer s.Unlock()

	slog.Info("add new conn", "connID", connID, "addr", conn.Addr())
	s.connections[connID] = conn
}

func (s *Server) deleteConn(connID int64) {
	s.Lock()
	defer s.Unlock()

	delete(s.connections, connID)
}

func (s *Server) getConn(connID int64) *framing.Conn {
	s.RLock()
	defer s.RUnlock()

	if conn, ok := s.connections[connID]; ok {
		return conn
	}

	return nil
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	server, err := framing.New(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, newHandler(time.Now().Unix())); err != nil {
		slog.Error("server error", "error", err)
	}
}
