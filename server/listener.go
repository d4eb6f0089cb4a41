package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"duty/rpcerr"
	"duty/transport"
)

// Listener accepts connections and serves each one with the same Handler on
// its own goroutine.
//
//	Accept conn → newTransport(conn) → ServeTransport until the conn ends
type Listener struct {
	handler      Handler
	newTransport func(net.Conn) transport.Transport
	mux          bool

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup // in-flight connections
	shutdown atomic.Bool
}

type ListenerOption func(*Listener)

// WithTransport sets how a connection becomes a Transport. The default is a
// framed ServerTransport.
func WithTransport(fn func(net.Conn) transport.Transport) ListenerOption {
	return func(l *Listener) { l.newTransport = fn }
}

// WithMux treats every connection as a yamux session and serves each of its
// streams as a connection of its own.
func WithMux() ListenerOption {
	return func(l *Listener) { l.mux = true }
}

func NewListener(h Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		handler: h,
		newTransport: func(conn net.Conn) transport.Transport {
			return transport.NewServerTransport(conn)
		},
		conns: make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListenAndServe listens on the address and serves until Shutdown.
func (l *Listener) ListenAndServe(ctx context.Context, network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return rpcerr.New(rpcerr.KindConnect, "listen "+address, err)
	}
	return l.Serve(ctx, ln)
}

// Serve accepts connections from ln until Shutdown, which makes it return nil.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	if l.shutdown.Load() {
		ln.Close()
		return nil
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("serving")

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener; only then is an Accept error expected.
			if l.shutdown.Load() {
				return nil
			}
			return rpcerr.New(rpcerr.KindConnect, "accept", err)
		}
		l.wg.Add(1)
		go l.handleConn(ctx, conn)
	}
}

// Addr returns the address being served, or nil before Serve.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	if l.mux {
		l.serveStreams(ctx, conn)
		return
	}
	l.serveConn(ctx, conn)
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	t := l.newTransport(conn)
	l.track(conn, true)
	defer l.track(conn, false)
	defer t.Close()

	remote := conn.RemoteAddr().String()
	log.Debug().Str("remote", remote).Msg("connection opened")
	if err := ServeTransport(ctx, t, l.handler); err != nil && !l.shutdown.Load() {
		log.Warn().Err(err).Str("remote", remote).Msg("connection ended")
		return
	}
	log.Debug().Str("remote", remote).Msg("connection closed")
}

func (l *Listener) serveStreams(ctx context.Context, conn net.Conn) {
	l.track(conn, true)
	defer l.track(conn, false)
	defer conn.Close()

	session, err := transport.ServeMux(conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("mux session failed")
		return
	}
	defer session.Close()
	for {
		stream, err := session.Accept()
		if err != nil {
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.serveConn(ctx, stream)
		}()
	}
}

func (l *Listener) track(conn net.Conn, add bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if add {
		l.conns[conn] = struct{}{}
	} else {
		delete(l.conns, conn)
	}
}

// Shutdown stops accepting, then waits up to timeout for open connections to
// be closed by their clients. Connections still open after that are closed
// and an error is returned.
func (l *Listener) Shutdown(timeout time.Duration) error {
	// The flag goes first so Serve sees it when Accept fails.
	l.shutdown.Store(true)
	l.mu.Lock()
	if l.listener != nil {
		l.listener.Close()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	l.mu.Lock()
	n := len(l.conns)
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()
	<-done
	return rpcerr.Errorf(rpcerr.KindCanceled, "shutdown", "closed %d connections still open after %v", n, timeout)
}
