// Package server decodes requests from a Transport, runs handlers and sends
// their responses back.
//
// Two routing granularities are provided:
//
//	Server[Req]        one request type; the caller answers through a RequestHandle
//	Handler            a whole service; generated code decodes the service's
//	                   request union and calls the matching method
//
// Listener runs a Handler for every connection accepted from a net.Listener.
package server

import (
	"sync/atomic"

	"duty/message"
	"duty/procedure"
	"duty/rpcerr"
	"duty/transport"
)

// Server reads requests of a single type from one Transport.
type Server[Req any] struct {
	t       transport.Transport
	pending *RequestHandle
}

func NewServer[Req any](t transport.Transport) *Server[Req] {
	return &Server[Req]{t: t}
}

// Next blocks until the next request arrives. The request must be answered
// through the returned handle before Next is called again; the connection is
// strictly one request, one response.
func (s *Server[Req]) Next() (Req, *RequestHandle, error) {
	var req Req
	if s.pending != nil && !s.pending.used.Load() {
		return req, nil, rpcerr.Errorf(rpcerr.KindMalformed, "next", "previous request has not been answered")
	}
	if err := s.t.Receive(&req); err != nil {
		return req, nil, err
	}
	s.pending = &RequestHandle{t: s.t}
	return req, s.pending, nil
}

// Close closes the transport.
func (s *Server[Req]) Close() error {
	return s.t.Close()
}

// RequestHandle answers exactly one request.
type RequestHandle struct {
	t    transport.Transport
	used atomic.Bool
}

// Respond sends resp as the answer to the request h was returned with. The
// procedure fixes the response type; its value is not sent. A second answer
// on the same handle returns rpcerr.ErrAlreadyResponded.
func Respond[R any](h *RequestHandle, _ procedure.Procedure[R], resp R) error {
	if !h.used.CompareAndSwap(false, true) {
		return rpcerr.ErrAlreadyResponded
	}
	return h.t.Send(message.OK(resp))
}

// Fail answers the request with an error; the caller sees it as a remote
// error.
func (h *RequestHandle) Fail(err error) error {
	if !h.used.CompareAndSwap(false, true) {
		return rpcerr.ErrAlreadyResponded
	}
	return h.t.Send(message.Fail[any](err))
}

// Canceled always reports false: nothing on the wire tells a server that the
// caller stopped waiting.
func (h *RequestHandle) Canceled() bool {
	return false
}
