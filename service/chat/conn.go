package chat

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Connection is a live, writable client channel. The transport owns its
// lifecycle; the registry only keeps references.
type Connection interface {
	ID() string
	Send(ctx context.Context, data []byte) error
	Close() error
}

var ErrConnClosed = errors.New("connection closed")

// WsConn adapts a gorilla websocket to Connection. gorilla allows one
// concurrent writer, so every data write goes through writeMu.
type WsConn struct {
	SnowID    string
	Conn      *websocket.Conn
	Remote    net.Addr
	CreatedAt time.Time

	writeMu      sync.Mutex
	writeTimeout time.Duration // 0 = no deadline
	closeOnce    sync.Once
	closed       chan struct{}
}

func NewWsConn(snowID string, conn *websocket.Conn, writeTimeout time.Duration) *WsConn {
	return &WsConn{
		SnowID:       snowID,
		Conn:         conn,
		Remote:       conn.RemoteAddr(),
		CreatedAt:    time.Now(),
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (w *WsConn) ID() string { return w.SnowID }

// Send writes one text frame.
func (w *WsConn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-w.closed:
		return ErrConnClosed
	default:
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.Conn.SetWriteDeadline(w.deadline(ctx)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := w.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "write to %s", w.SnowID)
	}
	return nil
}

// Ping sends a control frame. WriteControl may run alongside Send.
func (w *WsConn) Ping() error {
	deadline := time.Now().Add(w.controlTimeout())
	return w.Conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// CloseWith sends a close frame with code and reason, then closes.
func (w *WsConn) CloseWith(code int, reason string) error {
	deadline := time.Now().Add(w.controlTimeout())
	_ = w.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return w.Close()
}

func (w *WsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.Conn.Close()
	})
	return err
}

// Done is closed once Close has been called.
func (w *WsConn) Done() <-chan struct{} { return w.closed }

func (w *WsConn) deadline(ctx context.Context) time.Time {
	var d time.Time
	if w.writeTimeout > 0 {
		d = time.Now().Add(w.writeTimeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

func (w *WsConn) controlTimeout() time.Duration {
	if w.writeTimeout > 0 {
		return w.writeTimeout
	}
	return 5 * time.Second
}
