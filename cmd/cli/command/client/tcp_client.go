package client

// tcp_client.go = request/response client for the tcpgateway server.

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"tcpgateway/internal/microservices/tcp"
)

// TCPClient sends one framed request at a time and waits for its response
type TCPClient struct {
	serverAddr  string
	codec       tcp.Codec
	dialTimeout time.Duration
	conn        net.Conn
	reader      *bufio.Reader
	stats       ConnectionStats
	mu          sync.Mutex // one request in flight per connection
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	ConnectedAt      time.Time
	MessagesSent     int
	MessagesReceived int
	LastRoundTrip    time.Duration
}

// NewTCPClient creates a client, codec must match the server framing
func NewTCPClient(serverAddr string, codec tcp.Codec) *TCPClient {
	if codec == nil {
		codec = &tcp.LengthPrefixCodec{MaxSize: tcp.MaxMessageSize}
	}
	return &TCPClient{
		serverAddr:  serverAddr,
		codec:       codec,
		dialTimeout: 10 * time.Second,
	}
}

// Connect establishes connection to the TCP server
func (c *TCPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.stats = ConnectionStats{ConnectedAt: time.Now()}
	return nil
}

// Call sends req and blocks until its response arrives or ctx ends
func (c *TCPClient) Call(ctx context.Context, req tcp.Request) (tcp.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return tcp.Response{}, errors.New("not connected")
	}

	deadline, _ := ctx.Deadline() // zero => no deadline
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	payload, err := json.Marshal(req)
	if err != nil {
		return tcp.Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	frame, err := c.codec.Encode(payload)
	if err != nil {
		return tcp.Response{}, err
	}

	start := time.Now()
	if _, err := c.conn.Write(frame); err != nil {
		return tcp.Response{}, c.wrapErr(ctx, "send request", err)
	}
	c.stats.MessagesSent++

	raw, err := c.codec.Decode(c.reader)
	if err != nil {
		// the server closes without answering when it rejects a request
		return tcp.Response{}, c.wrapErr(ctx, "read response", err)
	}
	c.stats.MessagesReceived++
	c.stats.LastRoundTrip = time.Since(start)

	var resp tcp.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return tcp.Response{}, fmt.Errorf("%w: invalid response: %v", tcp.ErrDecode, err)
	}
	return resp, nil
}

func (c *TCPClient) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	// the socket deadline can fire a moment before the context timer does
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Disconnect closes the connection
func (c *TCPClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// GetStats returns a copy of the connection statistics
func (c *TCPClient) GetStats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
