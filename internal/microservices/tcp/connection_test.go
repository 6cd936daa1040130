package tcp

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pipeHarness struct {
	client  net.Conn
	reader  *bufio.Reader
	codec   Codec
	conn    *ClientConnection
	manager *ConnectionManager
	done    chan struct{}
	cancel  context.CancelFunc
}

func startPipe(t *testing.T, cfg connConfig) *pipeHarness {
	t.Helper()
	if cfg.codec == nil {
		cfg.codec = &LengthPrefixCodec{MaxSize: MaxMessageSize}
	}
	if cfg.logger == nil {
		cfg.logger = testLogger()
	}

	serverSide, clientSide := net.Pipe()
	manager := NewConnectionManager(testLogger())
	conn := NewClientConnection(serverSide, manager, cfg)
	ctx, cancel := context.WithCancel(context.Background())

	h := &pipeHarness{
		client:  clientSide,
		reader:  bufio.NewReader(clientSide),
		codec:   cfg.codec,
		conn:    conn,
		manager: manager,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go func() {
		defer close(h.done)
		conn.Listen(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		clientSide.Close()
		<-h.done
	})
	return h
}

func (h *pipeHarness) send(t *testing.T, payload string) {
	t.Helper()
	frame, err := h.codec.Encode([]byte(payload))
	require.NoError(t, err)
	h.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = h.client.Write(frame)
	require.NoError(t, err)
}

func (h *pipeHarness) receive(t *testing.T) string {
	t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := h.codec.Decode(h.reader)
	require.NoError(t, err)
	return string(payload)
}

func (h *pipeHarness) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit")
	}
}

func TestClientConnection_Scenarios(t *testing.T) {
	h := startPipe(t, connConfig{})

	h.send(t, `{"endpoint":"/api/","message":"hello"}`)
	assert.Equal(t, `{"message":"HELLO"}`, h.receive(t))

	h.send(t, `{"endpoint":"/api/hello","message":"x"}`)
	assert.Equal(t, `{"message":"Hello, my name is Eduard!"}`, h.receive(t))

	h.send(t, `{"endpoint":"/bogus","message":"x"}`)
	assert.Equal(t, `{"message":"Bad request"}`, h.receive(t))

	stats := h.manager.Stats()
	assert.Equal(t, uint64(3), stats.FramesReceived)
	assert.Equal(t, uint64(3), stats.ResponsesSent)
	assert.Equal(t, uint64(0), stats.DroppedFrames)
}

func TestClientConnection_PipelinedFramesAnsweredInOrder(t *testing.T) {
	h := startPipe(t, connConfig{})

	var batch []byte
	for _, msg := range []string{"one", "two", "three"} {
		frame, err := h.codec.Encode([]byte(`{"endpoint":"/api/","message":"` + msg + `"}`))
		require.NoError(t, err)
		batch = append(batch, frame...)
	}

	// a single write carrying three frames
	go h.client.Write(batch)

	assert.Equal(t, `{"message":"ONE"}`, h.receive(t))
	assert.Equal(t, `{"message":"TWO"}`, h.receive(t))
	assert.Equal(t, `{"message":"THREE"}`, h.receive(t))
}

func TestClientConnection_MalformedJSONClosesWithoutReply(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":        `this is not json`,
		"missing message": `{"endpoint":"/api/"}`,
	} {
		t.Run(name, func(t *testing.T) {
			h := startPipe(t, connConfig{})

			h.send(t, payload)

			h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := h.reader.Read(make([]byte, 1))
			assert.Equal(t, 0, n)
			assert.ErrorIs(t, err, io.EOF)

			h.waitClosed(t)
			assert.Equal(t, StateClosed, h.conn.State())
			assert.Equal(t, uint64(1), h.manager.Stats().DroppedFrames)
			assert.Equal(t, uint64(0), h.manager.Stats().ResponsesSent)
		})
	}
}

func TestClientConnection_FramingErrorCloses(t *testing.T) {
	h := startPipe(t, connConfig{codec: &LengthPrefixCodec{MaxSize: 8}})

	h.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := h.client.Write([]byte{0x00, 0x00, 0x01, 0x00}) // 256 > max
	require.NoError(t, err)

	h.waitClosed(t)
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = h.reader.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClientConnection_RemoteCloseEndsHandler(t *testing.T) {
	h := startPipe(t, connConfig{})
	h.client.Close()
	h.waitClosed(t)
	assert.Equal(t, StateClosed, h.conn.State())
}

func TestClientConnection_IdleTimeout(t *testing.T) {
	h := startPipe(t, connConfig{readTimeout: 50 * time.Millisecond})
	h.waitClosed(t)
}

func TestClientConnection_CancelInterruptsIdleRead(t *testing.T) {
	h := startPipe(t, connConfig{readTimeout: time.Hour})

	h.send(t, `{"endpoint":"/api/","message":"before"}`)
	assert.Equal(t, `{"message":"BEFORE"}`, h.receive(t))

	h.cancel()
	h.waitClosed(t)
}

func TestClientConnection_RateLimitedFramesStillAnswered(t *testing.T) {
	h := startPipe(t, connConfig{rateLimit: 200, rateBurst: 1})
	require.NotNil(t, h.conn.Limiter)

	for _, msg := range []string{"a", "b", "c", "d"} {
		h.send(t, `{"endpoint":"/api/","message":"`+msg+`"}`)
		assert.Equal(t, `{"message":"`+strings.ToUpper(msg)+`"}`, h.receive(t))
	}
}

func TestClientConnection_CRLFFraming(t *testing.T) {
	h := startPipe(t, connConfig{codec: &LineCodec{MaxSize: MaxMessageSize}})

	h.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := h.client.Write([]byte("{\"endpoint\":\"/api/\",\"message\":\"hello\"}\r\n"))
	require.NoError(t, err)

	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := h.reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"message\":\"HELLO\"}\r\n", line)
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "reading", StateReading.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "ConnState(42)", ConnState(42).String())
}
