package transport

import (
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"duty/logging"
	"duty/rpcerr"
)

func muxConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamCloseTimeout:     5 * time.Minute,
		StreamOpenTimeout:      75 * time.Second,
		LogOutput:              logging.NewDomain("mux"),
	}
}

// MuxSession carries many independent streams over one connection. Each
// stream can back its own Client, so a Dispatcher can hold several members
// that share a single socket to the same host.
type MuxSession struct {
	session *yamux.Session
}

// Mux starts the client side of a multiplexed session over conn.
func Mux(conn io.ReadWriteCloser) (*MuxSession, error) {
	session, err := yamux.Client(conn, muxConfig())
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindConnect, "mux", err)
	}
	return &MuxSession{session: session}, nil
}

// Open opens a new logical stream. The peer receives it from the listener
// returned by ServeMux.
func (m *MuxSession) Open() (net.Conn, error) {
	stream, err := m.session.Open()
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindConnect, "mux open", err)
	}
	return stream, nil
}

// NumStreams reports the number of currently open streams.
func (m *MuxSession) NumStreams() int {
	return m.session.NumStreams()
}

// Close tells the peer no more streams will be opened, then tears the session
// down. Streams still open are reset.
func (m *MuxSession) Close() error {
	m.session.GoAway()
	return m.session.Close()
}

// ServeMux starts the server side of a multiplexed session over conn. The
// returned listener yields one net.Conn per stream the client opens and can
// be served like any other listener.
func ServeMux(conn io.ReadWriteCloser) (net.Listener, error) {
	session, err := yamux.Server(conn, muxConfig())
	if err != nil {
		conn.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, "mux", err)
	}
	return session, nil
}
