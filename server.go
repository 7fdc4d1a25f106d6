package framing

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Handler is the interface for handling incoming TCP connections.
// Implementations usually wrap the connection with NewConn and call Run.
type Handler interface {
	// Handle is called on its own goroutine for each new connection.
	// The implementation is responsible for managing the connection.
	Handle(conn *net.TCPConn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn *net.TCPConn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *net.TCPConn) {
	f(conn)
}

// FramedHandler returns a Handler that wraps every accepted connection in a Conn
// built from opts and runs it until ctx is canceled or the connection fails.
// onConn, if not nil, is called with each Conn before it starts running.
// The decoder counters of each connection are logged when it ends.
func FramedHandler(ctx context.Context, onConn func(*Conn), opts ...Option) Handler {
	return framedHandler(ctx, onConn, nil, opts)
}

func framedHandler(ctx context.Context, onConn func(*Conn), onDone func(Stats), opts []Option) Handler {
	return HandlerFunc(func(tcp *net.TCPConn) {
		conn, err := NewConn(tcp, opts...)
		if err != nil {
			_ = tcp.Close()
			buildLogger(opts).Error("rejecting connection", "remote_addr", tcp.RemoteAddr(), "error", err)
			return
		}
		if onConn != nil {
			onConn(conn)
		}
		runErr := conn.Run(ctx)

		st := conn.Stats()
		logStats(conn, st, runErr)
		if onDone != nil {
			onDone(st)
		}
	})
}

// logStats reports the decoder counters of a finished connection, at warn
// level when frames were lost.
func logStats(conn *Conn, st Stats, runErr error) {
	args := []any{
		"addr", conn.Addr(),
		"frames", st.Frames,
		"length_mismatches", st.LengthMismatches,
		"payload_mismatches", st.PayloadMismatches,
		"capacity_drops", st.CapacityDrops,
		"overflows", st.Overflows,
		"noise_bytes", st.NoiseBytes,
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		args = append(args, "error", runErr)
	}
	if st.Dropped() > 0 {
		conn.logger.Warn("framed connection ended with dropped frames", args...)
		return
	}
	conn.logger.Info("framed connection ended", args...)
}

func buildLogger(opts []Option) Logger {
	o := buildOptions(opts)
	if o.logger == nil {
		return defaultLogger()
	}
	return o.logger
}

// Server accepts TCP connections and hands them to a Handler, or with
// ServeFramed runs each one as a framed Conn.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration

	active atomic.Int64

	statsMu sync.Mutex
	totals  Stats // counters of framed connections that have ended

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server will wait up to this duration
// before closing the listener. This gives existing connections time to complete.
// Default is 0 (immediate shutdown).
//
// Note: This only delays listener closure. For full graceful shutdown with
// connection draining, track connections at the application level and cancel
// them with the context passed to Conn.Run().
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:    listener,
		logger:      defaultLogger(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve starts accepting connections and dispatching them to the handler.
// It blocks until the context is canceled or an unrecoverable error occurs.
// When the context is canceled, it stops accepting new connections gracefully.
// If ServerShutdownTimeoutOption is set, the server waits up to the specified
// duration before stopping, allowing existing handlers to complete. Call Close()
// to bypass the timeout and shut down immediately.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	// Start a goroutine to handle context cancellation
	go func() {
		<-ctx.Done()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
				// Timeout expired, proceed with shutdown
			case <-s.shutdownNow:
				// Close() was called, skip remaining timeout
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			// Check if it's a temporary error
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)
		s.active.Add(1)
		go func() {
			defer s.active.Add(-1)
			handler.Handle(conn)
		}()
	}
}

// ServeFramed is Serve with a FramedHandler built from opts. The decoder
// counters of every connection are added to Stats once it ends.
func (s *Server) ServeFramed(ctx context.Context, onConn func(*Conn), opts ...Option) error {
	return s.Serve(ctx, framedHandler(ctx, onConn, s.addStats, opts))
}

func (s *Server) addStats(st Stats) {
	s.statsMu.Lock()
	s.totals = s.totals.Add(st)
	s.statsMu.Unlock()
}

// Stats returns the summed decoder counters of finished framed connections.
func (s *Server) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.totals
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	// Signal to bypass any pending shutdown timeout
	select {
	case s.shutdownNow <- struct{}{}:
	default:
		// Channel already has a signal or no one is listening
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Active returns the number of handlers still running.
func (s *Server) Active() int {
	return int(s.active.Load())
}
