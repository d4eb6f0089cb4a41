package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"duty/client"
	"duty/codec"
	"duty/middleware"
	"duty/rpcerr"
	"duty/transport"
)

type addProc struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (p addProc) Request() any      { return p }
func (addProc) Reduce(a, b int) int { return a + b }

type divProc struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (p divProc) Request() any      { return p }
func (divProc) Reduce(a, b int) int { return a + b }

func loopback(ct codec.CodecType) (*client.Client, transport.Transport) {
	a, b := transport.Pipe()
	return client.New(transport.NewClientTransport(a, ct)), transport.NewServerTransport(b)
}

// K sequential requests give exactly K round trips, then the loop ends when
// the client hangs up.
func TestSingleOperationServer(t *testing.T) {
	const k = 5
	c, st := loopback(codec.CodecTypeCBOR)
	srv := NewServer[addProc](st)

	served := make(chan int, 1)
	loopErr := make(chan error, 1)
	go func() {
		n := 0
		for {
			req, h, err := srv.Next()
			if err != nil {
				served <- n
				loopErr <- err
				return
			}
			if err := Respond(h, req, req.A+req.B); err != nil {
				served <- n
				loopErr <- err
				return
			}
			n++
		}
	}()

	for i := 0; i < k; i++ {
		got, err := client.Call(c, addProc{A: i, B: i}).Get()
		if err != nil {
			t.Fatal(err)
		}
		if got != 2*i {
			t.Fatalf("request %d: expect %d, got %d", i, 2*i, got)
		}
	}
	c.Close()

	if n := <-served; n != k {
		t.Fatalf("expect %d round trips, got %d", k, n)
	}
	if err := <-loopErr; !rpcerr.IsDisconnect(err) {
		t.Fatalf("expect the loop to end with a disconnect, got %v", err)
	}
}

func TestRequestHandleSingleUse(t *testing.T) {
	c, st := loopback(codec.CodecTypeJSON)
	defer c.Close()
	srv := NewServer[divProc](st)

	errs := make(chan error, 3)
	go func() {
		req, h, err := srv.Next()
		if err != nil {
			errs <- err
			return
		}
		if h.Canceled() {
			errs <- errors.New("Canceled must report false")
			return
		}
		if req.B == 0 {
			errs <- h.Fail(errors.New("division by zero"))
		} else {
			errs <- Respond(h, req, req.A/req.B)
		}
		errs <- Respond(h, req, 0)
		errs <- h.Fail(errors.New("late"))
	}()

	_, err := client.Call(c, divProc{A: 1, B: 0}).Get()
	if !rpcerr.Is(err, rpcerr.KindRemote) {
		t.Fatalf("expect KindRemote, got %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("first answer: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, rpcerr.ErrAlreadyResponded) {
			t.Fatalf("expect ErrAlreadyResponded, got %v", err)
		}
	}
}

// A failed answer must decode for any response type, whatever the codec.
func TestFailReachesTypedClient(t *testing.T) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeCBOR} {
		c, st := loopback(ct)
		srv := NewServer[addProc](st)

		go func() {
			if _, h, err := srv.Next(); err == nil {
				h.Fail(errors.New("boom"))
			}
		}()

		_, err := client.Call(c, addProc{}).Get()
		if !rpcerr.Is(err, rpcerr.KindRemote) {
			t.Fatalf("%v: expect KindRemote, got %v", ct, err)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Fatalf("%v: expect the handler message, got %v", ct, err)
		}
		c.Close()
	}
}

func TestNextBeforeRespond(t *testing.T) {
	c, st := loopback(codec.CodecTypeJSON)
	defer c.Close()
	srv := NewServer[addProc](st)

	h := client.Call(c, addProc{A: 1, B: 2})
	req, rh, err := srv.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := srv.Next(); err == nil {
		t.Fatal("Next must refuse while the previous request is unanswered")
	}
	if err := Respond(rh, req, 3); err != nil {
		t.Fatal(err)
	}
	if got, err := h.Get(); err != nil || got != 3 {
		t.Fatalf("got %v, %v", got, err)
	}
}

var adder = HandlerFunc(func(ctx context.Context, t transport.Transport) error {
	var p addProc
	if err := t.Receive(&p); err != nil {
		return err
	}
	return Reply(ctx, t, nil, "Add", &p, func(context.Context) (any, error) {
		return p.A + p.B, nil
	})
})

func TestServeTransport(t *testing.T) {
	c, st := loopback(codec.CodecTypeJSON)

	done := make(chan error, 1)
	go func() { done <- ServeTransport(context.Background(), st, adder) }()

	for i := 0; i < 3; i++ {
		if got, err := client.Call(c, addProc{A: i, B: 1}).Get(); err != nil || got != i+1 {
			t.Fatalf("call %d: %v, %v", i, got, err)
		}
	}
	c.Close()
	if err := <-done; err != nil {
		t.Fatalf("a client hanging up is a clean end, got %v", err)
	}
}

func TestReplyThroughMiddleware(t *testing.T) {
	c, st := loopback(codec.CodecTypeJSON)
	defer c.Close()

	limit := middleware.RateLimit(0, 1)
	limited := HandlerFunc(func(ctx context.Context, t transport.Transport) error {
		var p addProc
		if err := t.Receive(&p); err != nil {
			return err
		}
		return Reply(ctx, t, limit, "Add", &p, func(context.Context) (any, error) {
			return p.A + p.B, nil
		})
	})
	go ServeTransport(context.Background(), st, limited)

	if _, err := client.Call(c, addProc{A: 1, B: 1}).Get(); err != nil {
		t.Fatalf("first call is within the burst: %v", err)
	}
	_, err := client.Call(c, addProc{A: 1, B: 1}).Get()
	if !rpcerr.Is(err, rpcerr.KindRemote) {
		t.Fatalf("expect the rate limit as a remote error, got %v", err)
	}
}

func dial(t *testing.T, addr net.Addr) *client.Client {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	return client.New(transport.NewClientTransport(conn, codec.CodecTypeCBOR))
}

func TestListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	l := NewListener(adder)
	served := make(chan error, 1)
	go func() { served <- l.Serve(context.Background(), ln) }()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := dial(t, ln.Addr())
			defer c.Close()
			for j := 0; j < 10; j++ {
				if got, err := client.Call(c, addProc{A: i, B: j}).Get(); err != nil || got != i+j {
					t.Errorf("client %d call %d: %v, %v", i, j, got, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := l.Shutdown(time.Second); err != nil {
		t.Fatalf("every client left, Shutdown must be clean: %v", err)
	}
	if err := <-served; err != nil {
		t.Fatalf("Serve after Shutdown: %v", err)
	}
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	l := NewListener(adder)
	go l.Serve(context.Background(), ln)

	c := dial(t, ln.Addr())
	defer c.Close()
	if _, err := client.Call(c, addProc{A: 1, B: 1}).Get(); err != nil {
		t.Fatal(err)
	}

	if err := l.Shutdown(50 * time.Millisecond); err == nil {
		t.Fatal("expect an error for a connection left open")
	}
	if _, err := client.Call(c, addProc{A: 1, B: 1}).Get(); err == nil {
		t.Fatal("the connection must be closed after Shutdown")
	}
}

func TestListenerMux(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	l := NewListener(adder, WithMux())
	go l.Serve(context.Background(), ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	session, err := transport.Mux(conn)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		stream, err := session.Open()
		if err != nil {
			t.Fatal(err)
		}
		c := client.New(transport.NewClientTransport(stream, codec.CodecTypeJSON))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if got, err := client.Call(c, addProc{A: i, B: j}).Get(); err != nil || got != i+j {
					t.Errorf("stream %d call %d: %v, %v", i, j, got, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if n := session.NumStreams(); n != 3 {
		t.Errorf("expect 3 open streams, got %d", n)
	}

	session.Close()
	if err := l.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown after the session closed: %v", err)
	}
}
