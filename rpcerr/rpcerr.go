// Package rpcerr defines the error taxonomy shared by every layer of duty.
//
// Callers look at the Kind to decide what to do next:
//
//	KindConnect   → could not reach the peer, reconnect or give up
//	KindEncode    → the value cannot be represented by the codec, fix the caller
//	KindSend      → could not send, the connection is probably gone
//	KindReceive   → could not receive, the connection is probably gone
//	KindMalformed → the peer sent bytes we cannot decode
//	KindRemote    → the remote handler returned an error, the connection is fine
//	KindCanceled  → the caller stopped waiting
package rpcerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	pkgerr "github.com/pkg/errors"
)

type Kind uint8

const (
	KindConnect Kind = iota + 1
	KindEncode
	KindSend
	KindReceive
	KindMalformed
	KindRemote
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connection error"
	case KindEncode:
		return "encode failed"
	case KindSend:
		return "could not send"
	case KindReceive:
		return "could not receive"
	case KindMalformed:
		return "malformed message"
	case KindRemote:
		return "remote error"
	case KindCanceled:
		return "canceled"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the typed error returned by transports, clients and servers.
type Error struct {
	Kind Kind
	Op   string // e.g. "send", "receive", "dial 127.0.0.1:9000"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "duty: " + e.Op + ": " + e.Kind.String()
	}
	return "duty: " + e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrHandleConsumed   = errors.New("duty: call handle already consumed")
	ErrAlreadyResponded = errors.New("duty: request already responded to")
	ErrClosed           = errors.New("duty: transport closed")
	ErrCanceled         = &Error{Kind: KindCanceled, Op: "call"}
)

// New wraps err with a kind and an operation name. The underlying error gets a
// stack trace attached if it does not carry one already.
func New(kind Kind, op string, err error) *Error {
	if err != nil {
		if _, ok := err.(interface{ StackTrace() pkgerr.StackTrace }); !ok {
			err = pkgerr.WithStack(err)
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error from a formatted message.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: pkgerr.Errorf(format, args...)}
}

// Remote builds the error a client sees when the handler on the other side failed.
func Remote(op, msg string) *Error {
	return &Error{Kind: KindRemote, Op: op, Err: errors.New(msg)}
}

// KindOf reports the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsDisconnect reports whether err means the peer went away. A request loop
// treats this as the normal end of a connection.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, ErrClosed)
}

// IsCanceled reports whether err is a local cancellation or a context error.
func IsCanceled(err error) bool {
	return Is(err, KindCanceled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
