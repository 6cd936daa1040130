package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultReadTimeout  = 5 * time.Minute // idle time allowed between frames
	DefaultWriteTimeout = 10 * time.Second
)

// ConnState is the lifecycle stage of one connection
type ConnState int32

const (
	StateOpen ConnState = iota
	StateReading
	StateDispatching
	StateWriting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateDispatching:
		return "dispatching"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// connConfig is what a server hands to every connection it accepts
type connConfig struct {
	codec        Codec
	dispatcher   Dispatcher
	readTimeout  time.Duration
	writeTimeout time.Duration
	rateLimit    float64 // frames per second, 0 = unlimited
	rateBurst    int
	logger       *slog.Logger
}

type ClientConnection struct {
	ID      string // unique identifier = key in the manager map
	conn    net.Conn
	reader  *bufio.Reader
	Writer  *bufio.Writer
	Manager *ConnectionManager
	Limiter *rate.Limiter // nil when rate limiting is off

	codec        Codec
	dispatcher   Dispatcher
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

func NewClientConnection(conn net.Conn, manager *ConnectionManager, cfg connConfig) *ClientConnection {
	id := uuid.NewString()
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &ClientConnection{
		ID:           id,
		conn:         conn,
		reader:       bufio.NewReader(conn),
		Writer:       bufio.NewWriter(conn),
		Manager:      manager,
		codec:        cfg.codec,
		dispatcher:   cfg.dispatcher,
		readTimeout:  cfg.readTimeout,
		writeTimeout: cfg.writeTimeout,
		logger:       logger.With("client_id", id),
	}
	if c.codec == nil {
		c.codec = &LengthPrefixCodec{MaxSize: MaxMessageSize}
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDefaultRouter()
	}
	if cfg.rateLimit > 0 {
		burst := cfg.rateBurst
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.rateLimit), burst)
	}
	return c
}

// State reports where the handler currently is in its loop
func (c *ClientConnection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *ClientConnection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Listen runs the read => dispatch => write loop until the peer goes away,
// a frame is unusable, or ctx is cancelled
// a cancelled ctx interrupts an idle read, a frame already being dispatched is still answered
func (c *ClientConnection) Listen(ctx context.Context) {
	defer c.Close()

	// moving the deadline to now wakes a blocked Decode
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	c.logger.Info("client_started_listening",
		"remote_addr", c.conn.RemoteAddr().String(),
		"framing", c.codec.Name(),
	)

	for {
		c.setState(StateReading)
		c.armReadDeadline()
		// checked after arming => a cancel racing with the line above still wins
		if ctx.Err() != nil {
			c.logger.Info("client_shutdown")
			return
		}

		payload, err := c.codec.Decode(c.reader)
		if err != nil {
			c.logReadError(ctx, err)
			return
		}
		c.Manager.frameReceived()

		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				c.Manager.frameDropped()
				c.logger.Info("client_shutdown_while_rate_limited",
					"error", err.Error(),
				)
				return
			}
		}

		req, err := ParseRequest(payload)
		if err != nil {
			// malformed input => drop the connection without answering
			c.Manager.frameDropped()
			c.logger.Warn("invalid_request",
				"input", string(payload),
				"error", err.Error(),
			)
			return
		}

		c.setState(StateDispatching)
		c.logger.Info("request_received",
			"endpoint", req.Endpoint,
			"input", string(payload),
		)
		resp := c.dispatcher.Handle(req)

		out, err := SerializeResponse(resp)
		if err != nil {
			c.Manager.frameDropped()
			c.logger.Error("failed_to_marshal_response",
				"error", err.Error(),
			)
			return
		}

		c.setState(StateWriting)
		if err := c.Send(out); err != nil {
			c.Manager.frameDropped()
			if errors.Is(err, net.ErrClosed) {
				return // force closed during shutdown
			}
			c.logger.Error("client_write_error",
				"error", err.Error(),
			)
			return
		}
		c.Manager.responseSent()
		c.logger.Info("response_sent",
			"output", string(out),
		)
	}
}

func (c *ClientConnection) armReadDeadline() {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return
	}
	c.conn.SetReadDeadline(time.Time{})
}

func (c *ClientConnection) logReadError(ctx context.Context, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		c.logger.Info("client_disconnected")
	case ctx.Err() != nil:
		c.logger.Info("client_shutdown")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Warn("client_read_timeout",
			"timeout", c.readTimeout.String(),
		)
	case errors.Is(err, net.ErrClosed):
		// closed underneath us by CloseAllConnections
	case errors.Is(err, ErrFraming):
		c.logger.Warn("client_framing_error",
			"error", err.Error(),
		)
	default:
		c.logger.Error("client_read_error",
			"error", err.Error(),
		)
	}
}

// Send frames payload with the connection codec and flushes it
func (c *ClientConnection) Send(payload []byte) error {
	frame, err := c.codec.Encode(payload)
	if err != nil {
		return err
	}
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.Writer.Write(frame); err != nil {
		return fmt.Errorf("%w: failed to write frame: %w", ErrIO, err)
	}
	if err := c.Writer.Flush(); err != nil {
		return fmt.Errorf("%w: failed to flush writer: %w", ErrIO, err)
	}
	return nil
}

// Close is safe to call from any goroutine, more than once
func (c *ClientConnection) Close() {
	c.setState(StateClosed)
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
