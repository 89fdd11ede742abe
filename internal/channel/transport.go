package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/logging"
)

// transport is one live websocket connection. It owns a single writer
// goroutine; the reader runs in Channel.readLoop.
type transport struct {
	conn   *websocket.Conn
	sid    string
	open   openInfo
	logger *logging.Logger

	send chan []byte
	pong chan struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}
	closeOnce  sync.Once
}

// dial opens the websocket, completes the Engine.IO open and the Socket.IO
// namespace connect with token as auth.
func (c *Channel) dial(ctx context.Context, token string) (*transport, error) {
	dctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dctx, c.endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCanceled, "dial")
		}
		return nil, errors.NewChannelError("dial", err).WithEndpoint(c.endpoint)
	}

	// Unblock handshake reads if the caller gives up.
	stop := context.AfterFunc(dctx, func() { _ = conn.Close() })

	open, sid, err := handshake(dctx, conn, token)
	if !stop() {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCanceled, "handshake")
		}
		return nil, errors.NewChannelError("handshake timed out", errors.ErrTimeout).WithEndpoint(c.endpoint)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	tctx, tcancel := context.WithCancel(context.Background())
	t := &transport{
		conn:       conn,
		sid:        sid,
		open:       open,
		logger:     c.logger.WithConnection(sid),
		send:       make(chan []byte, c.sendBuffer),
		pong:       make(chan struct{}, 1),
		ctx:        tctx,
		cancel:     tcancel,
		writerDone: make(chan struct{}),
	}
	go t.writeLoop()
	return t, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, token string) (openInfo, string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	var open openInfo
	p, err := readPacket(conn)
	if err != nil {
		return open, "", errors.NewChannelError("read open packet", err)
	}
	if p.kind != kindOpen {
		return open, "", errors.NewChannelError("expected open packet", errors.ErrHandshakeRejected).WithRetryable(false)
	}
	if err := json.Unmarshal(p.data, &open); err != nil {
		return open, "", errors.NewChannelError("decode open packet", err)
	}

	frame, err := encodeConnect(token)
	if err != nil {
		return open, "", err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return open, "", errors.NewChannelError("send connect", err)
	}

	for {
		p, err := readPacket(conn)
		if err != nil {
			return open, "", errors.NewChannelError("await connect ack", err)
		}
		switch p.kind {
		case kindPing:
			if err := conn.WriteMessage(websocket.TextMessage, framePong); err != nil {
				return open, "", errors.NewChannelError("send pong", err)
			}
		case kindConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(p.data, &ack)
			if ack.SID == "" {
				ack.SID = open.SID
			}
			_ = conn.SetWriteDeadline(time.Time{})
			return open, ack.SID, nil
		case kindConnectError:
			return open, "", errors.NewChannelError("connect rejected: "+connectError(p.data), errors.ErrHandshakeRejected).
				WithRetryable(false)
		case kindClose, kindDisconnect:
			return open, "", errors.NewChannelError("closed during handshake", errors.ErrNotConnected)
		}
	}
}

func readPacket(conn *websocket.Conn) (packet, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return packet{}, err
	}
	return parsePacket(data)
}

// enqueue queues a frame for the writer. It never blocks.
func (t *transport) enqueue(frame []byte) bool {
	if t.ctx.Err() != nil {
		return false
	}
	select {
	case t.send <- frame:
		return true
	default:
		return false
	}
}

func (t *transport) queuePong() {
	select {
	case t.pong <- struct{}{}:
	default:
	}
}

func (t *transport) writeLoop() {
	defer close(t.writerDone)
	for {
		select {
		case <-t.ctx.Done():
			_ = t.conn.SetWriteDeadline(time.Now().Add(closeGrace))
			_ = t.conn.WriteMessage(websocket.TextMessage, frameDisconnect)
			_ = t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-t.pong:
			if !t.write(framePong) {
				return
			}
		case frame := <-t.send:
			if !t.write(frame) {
				return
			}
		}
	}
}

func (t *transport) write(frame []byte) bool {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.logger.Warn("socket write failed", "error", err)
		// The reader sees the closed conn and reports the drop.
		_ = t.conn.Close()
		return false
	}
	return true
}

// close stops the writer, letting it say goodbye, then closes the socket.
// Safe to call more than once.
func (t *transport) close() {
	t.closeOnce.Do(func() {
		t.cancel()
		timer := time.NewTimer(closeGrace + 100*time.Millisecond)
		defer timer.Stop()
		select {
		case <-t.writerDone:
		case <-timer.C:
		}
		_ = t.conn.Close()
	})
}
