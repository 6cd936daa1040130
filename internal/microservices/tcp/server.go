package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const DefaultShutdownTimeout = 5 * time.Second

type TCPServer struct {
	Addr    string             // address to bind, host:port
	Manager *ConnectionManager // shared by every handler goroutine

	codec           Codec
	dispatcher      Dispatcher
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	rateLimit       float64
	rateBurst       int
	logger          *slog.Logger

	mu       sync.Mutex // guards listener, cancel, done
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{} // closed when Serve returns

	wg sync.WaitGroup // one per connection handler goroutine
}

// Option customises a TCPServer
type Option func(*TCPServer)

func WithCodec(codec Codec) Option {
	return func(s *TCPServer) { s.codec = codec }
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *TCPServer) { s.dispatcher = d }
}

// WithReadTimeout bounds the idle time between frames, 0 disables it
func WithReadTimeout(d time.Duration) Option {
	return func(s *TCPServer) { s.readTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *TCPServer) { s.writeTimeout = d }
}

// WithShutdownTimeout bounds how long draining handlers may take before they are force-closed
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *TCPServer) { s.shutdownTimeout = d }
}

// WithRateLimit limits every connection to perSecond frames with the given burst
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *TCPServer) {
		s.rateLimit = perSecond
		s.rateBurst = burst
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *TCPServer) { s.logger = logger }
}

func NewServer(addr string, opts ...Option) *TCPServer {
	s := &TCPServer{
		Addr:            addr,
		codec:           &LengthPrefixCodec{MaxSize: MaxMessageSize},
		dispatcher:      NewDefaultRouter(),
		readTimeout:     DefaultReadTimeout,
		writeTimeout:    DefaultWriteTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Manager = NewConnectionManager(s.logger)
	return s
}

// Listen binds the server address without accepting yet
func (s *TCPServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("tcp server already listening")
	}
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server, error: %w", err)
	}
	s.listener = listener
	s.logger.Info("tcp_server_started",
		"addr", listener.Addr().String(),
		"framing", s.codec.Name(),
	)
	return nil
}

// ListenAddr is the bound address, useful when Addr asked for port 0
func (s *TCPServer) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds and serves until ctx is cancelled or Stop is called
func (s *TCPServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the bound listener, one goroutine each
// on return the listener is closed and every handler has exited
func (s *TCPServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return errors.New("tcp server is not listening")
	}
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("tcp server already serving")
	}
	ctx, cancel := context.WithCancel(ctx)
	listener := s.listener
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	// closing the listener is the only way to unblock Accept
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("failed_to_accept_connection",
				"error", err.Error(),
			)
			continue
		}
		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}(conn)
	}

	cancel() // tell handlers to finish their current frame
	s.drain()
	s.logger.Info("tcp_server_stopped")
	return nil
}

// handle lifecycle of a single client connection
func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	client := NewClientConnection(conn, s.Manager, connConfig{
		codec:        s.codec,
		dispatcher:   s.dispatcher,
		readTimeout:  s.readTimeout,
		writeTimeout: s.writeTimeout,
		rateLimit:    s.rateLimit,
		rateBurst:    s.rateBurst,
		logger:       s.logger,
	})
	s.Manager.AddConnection(client)
	defer s.Manager.RemoveConnection(client)
	client.Listen(ctx)
}

// drain waits for handlers up to the shutdown timeout, then force-closes the rest
func (s *TCPServer) drain() {
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-drained:
		return
	case <-timer.C:
	}

	forced := s.Manager.CloseAllConnections()
	s.logger.Warn("shutdown_timeout_exceeded",
		"timeout", s.shutdownTimeout.String(),
		"forced_connections", forced,
	)
	<-drained
}

// Stop cancels Serve and waits for it to drain
func (s *TCPServer) Stop() {
	s.mu.Lock()
	cancel, done, listener := s.cancel, s.done, s.listener
	s.mu.Unlock()

	if cancel == nil {
		// bound but never served
		if listener != nil {
			listener.Close()
		}
		return
	}
	cancel()
	<-done
}
