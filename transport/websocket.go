package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"duty/rpcerr"
)

// WebsocketSubprotocol is negotiated by DialWebsocket and required by
// WebsocketListener.
const WebsocketSubprotocol = "duty"

// DialWebsocket opens a websocket to url and returns it as a byte stream.
func DialWebsocket(ctx context.Context, url string, header http.Header) (net.Conn, error) {
	d := websocket.Dialer{
		Subprotocols:     []string{WebsocketSubprotocol},
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  32 * 1024,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := d.DialContext(ctx, url, header)
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindConnect, "dial "+url, err)
	}
	return &wsConn{conn: conn}, nil
}

// WebsocketListener is an http.Handler that upgrades requests to websockets
// and hands them out through Accept, so it can be served like a TCP listener.
type WebsocketListener struct {
	upgrader websocket.Upgrader
	addr     net.Addr
	backlog  chan net.Conn
	done     chan struct{}
	once     sync.Once
}

// NewWebsocketListener returns a listener reporting addr from Addr. addr may
// be nil.
func NewWebsocketListener(addr net.Addr) *WebsocketListener {
	return &WebsocketListener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			Subprotocols:    []string{WebsocketSubprotocol},
		},
		addr:    addr,
		backlog: make(chan net.Conn, 64),
		done:    make(chan struct{}),
	}
}

func (l *WebsocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wc, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	if wc.Subprotocol() != WebsocketSubprotocol {
		log.Warn().Str("subprotocol", wc.Subprotocol()).Str("remote", r.RemoteAddr).Msg("unsupported subprotocol")
		wc.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"),
			time.Now().Add(time.Second))
		wc.Close()
		return
	}

	conn := &wsConn{conn: wc}
	select {
	case l.backlog <- conn:
	case <-l.done:
		conn.Close()
	case <-time.After(5 * time.Second):
		log.Warn().Str("remote", r.RemoteAddr).Msg("listener backlog full")
		conn.Close()
	}
}

func (l *WebsocketListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.backlog:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *WebsocketListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *WebsocketListener) Addr() net.Addr {
	if l.addr == nil {
		return wsAddr{}
	}
	return l.addr
}

type wsAddr struct{}

func (wsAddr) Network() string { return "websocket" }
func (wsAddr) String() string  { return "websocket" }

// wsConn presents a websocket as a net.Conn. Every Write is one binary
// message; Read hands out message payloads in order, keeping the remainder of
// a message that does not fit.
type wsConn struct {
	conn   *websocket.Conn
	closed atomic.Bool
	buf    bytes.Buffer
}

func (w *wsConn) LocalAddr() net.Addr                { return w.conn.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr               { return w.conn.RemoteAddr() }
func (w *wsConn) SetDeadline(t time.Time) error      { return w.conn.NetConn().SetDeadline(t) }
func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }

func (w *wsConn) Write(in []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, in); err != nil {
		return 0, err
	}
	return len(in), nil
}

func (w *wsConn) Read(out []byte) (int, error) {
	n, _ := w.buf.Read(out)
	if n > 0 || len(out) == 0 {
		return n, nil
	}

	for {
		ty, in, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, net.ErrClosed
			}
			return 0, err
		}
		if ty != websocket.TextMessage && ty != websocket.BinaryMessage || len(in) == 0 {
			continue
		}

		n = copy(out, in)
		if len(in) > n {
			w.buf.Write(in[n:])
		}
		return n, nil
	}
}

func (w *wsConn) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
