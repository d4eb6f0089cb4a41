package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"duty/codec"
	"duty/message"
	"duty/rpcerr"
	"duty/transport"
)

type andProc struct {
	A bool `json:"a"`
	B bool `json:"b"`
}

func (p andProc) Request() any        { return p }
func (andProc) Reduce(a, b bool) bool { return a && b }

type addProc struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (p addProc) Request() any      { return p }
func (addProc) Reduce(a, b int) int { return a + b }

// serveAdd answers addProc requests over a real framed connection.
func serveAdd(t transport.Transport) {
	for {
		var p addProc
		if err := t.Receive(&p); err != nil {
			return
		}
		if err := t.Send(message.OK(p.A + p.B)); err != nil {
			return
		}
	}
}

func newAddClient(t *testing.T) *Client {
	t.Helper()
	a, b := transport.Pipe()
	go serveAdd(transport.NewServerTransport(b))
	c := New(transport.NewClientTransport(a, codec.CodecTypeCBOR))
	t.Cleanup(func() { c.Close() })
	return c
}

// fakeTransport answers every request with reply(request) after release is
// closed (or at once if release is nil).
type fakeTransport struct {
	sends   atomic.Int32
	release chan struct{}
	last    any
	reply   func(req any) any
}

func (f *fakeTransport) Send(v any) error {
	f.sends.Add(1)
	f.last = v
	return nil
}

func (f *fakeTransport) Receive(v any) error {
	if f.release != nil {
		<-f.release
	}
	data, err := json.Marshal(f.reply(f.last))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (f *fakeTransport) Close() error { return nil }

func TestCallGet(t *testing.T) {
	c := newAddClient(t)

	h := Call(c, addProc{A: 2, B: 3})
	got, err := h.Get()
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Fatalf("expect 5, got %d", got)
	}
	if !h.IsFinished() {
		t.Fatal("handle must be finished after Get")
	}
	if _, err := h.Get(); !errors.Is(err, rpcerr.ErrHandleConsumed) {
		t.Fatalf("expect ErrHandleConsumed, got %v", err)
	}
}

// Overlapping calls on one transport each get their own, complete response.
func TestConcurrentCalls(t *testing.T) {
	c := newAddClient(t)

	const n = 50
	handles := make([]*CallHandle[int], n)
	for i := range handles {
		handles[i] = Call(c, addProc{A: i, B: 1000})
	}

	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.Get()
			if err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			if got != i+1000 {
				t.Errorf("call %d: expect %d, got %d", i, i+1000, got)
			}
		}()
	}
	wg.Wait()
}

func TestRemoteError(t *testing.T) {
	f := &fakeTransport{reply: func(any) any { return message.Fail[bool](errors.New("no quorum")) }}
	c := New(f)

	_, err := Call(c, andProc{A: true}).Get()
	if !rpcerr.Is(err, rpcerr.KindRemote) {
		t.Fatalf("expect KindRemote, got %v", err)
	}
}

func TestCancelBeforeSend(t *testing.T) {
	f := &fakeTransport{
		release: make(chan struct{}),
		reply:   func(any) any { return message.OK(true) },
	}
	c := New(f)

	first := Call(c, andProc{A: true, B: true})
	// Wait until the first call holds the transport.
	for f.sends.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := Call(c, andProc{A: true, B: true})
	second.Cancel()
	if !second.IsFinished() {
		t.Fatal("a canceled handle is finished")
	}
	if _, err := second.Get(); !errors.Is(err, rpcerr.ErrCanceled) {
		t.Fatalf("expect ErrCanceled, got %v", err)
	}
	<-second.Done()

	close(f.release)
	if got, err := first.Get(); err != nil || !got {
		t.Fatalf("first call: %v, %v", got, err)
	}
	if n := f.sends.Load(); n != 1 {
		t.Fatalf("a call canceled before sending must not send, got %d sends", n)
	}
}

func TestGetContextTimeout(t *testing.T) {
	f := &fakeTransport{
		release: make(chan struct{}),
		reply:   func(any) any { return message.OK(true) },
	}
	defer close(f.release)
	c := New(f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Call(c, andProc{}).GetContext(ctx)
	if !rpcerr.IsCanceled(err) {
		t.Fatalf("expect a canceled error, got %v", err)
	}
}

func TestInvokeDoneContext(t *testing.T) {
	f := &fakeTransport{reply: func(any) any { return message.OK(1) }}
	c := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Invoke[int](ctx, c, "Add", addProc{}); !rpcerr.Is(err, rpcerr.KindCanceled) {
		t.Fatalf("expect KindCanceled, got %v", err)
	}
	if f.sends.Load() != 0 {
		t.Fatal("a done context must not send")
	}

	got, err := Invoke[int](context.Background(), c, "Add", addProc{})
	if err != nil || got != 1 {
		t.Fatalf("Invoke: %v, %v", got, err)
	}
}

type panicTransport struct{}

func (panicTransport) Send(any) error    { return nil }
func (panicTransport) Receive(any) error { panic("decoder exploded") }
func (panicTransport) Close() error      { return nil }

func TestPanicPropagates(t *testing.T) {
	c := New(panicTransport{})
	h := Call(c, andProc{})
	<-h.Done()

	defer func() {
		if r := recover(); r != "decoder exploded" {
			t.Fatalf("expect the worker panic in Get, got %v", r)
		}
	}()
	h.Get()
	t.Fatal("Get must panic")
}

func TestTransportClosed(t *testing.T) {
	a, b := transport.Pipe()
	b.Close()
	c := New(transport.NewClientTransport(a, codec.CodecTypeJSON))
	defer c.Close()

	_, err := Call(c, addProc{A: 1, B: 1}).Get()
	if !rpcerr.IsDisconnect(err) {
		t.Fatalf("expect a disconnect error, got %v", err)
	}
}

func TestCallAfterClose(t *testing.T) {
	f := &fakeTransport{reply: func(any) any { return message.OK(2) }}
	c := New(f)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, err := Call(c, addProc{A: 1, B: 1}).Get()
	if !errors.Is(err, rpcerr.ErrClosed) || !rpcerr.Is(err, rpcerr.KindSend) {
		t.Fatalf("expect ErrClosed as a send error, got %v", err)
	}
	if !rpcerr.IsDisconnect(err) {
		t.Fatalf("a closed client is a disconnect, got %v", err)
	}
	if f.sends.Load() != 0 {
		t.Fatal("a closed client must not send")
	}
}
