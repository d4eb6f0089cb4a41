package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"

	"duty/rpcerr"
)

// Pipe returns the two ends of a synchronous in-process duplex stream. Each
// end is owned by one Client or Server; it is what loopback tests run on.
func Pipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

type readWriter struct {
	io.Reader
	io.Writer
	once sync.Once
	err  error
}

// ReadWriter joins a reader and a writer into one stream, e.g. a child
// process's stdout and stdin. Close closes whichever halves are io.Closers,
// writer first so the peer sees EOF.
func ReadWriter(r io.Reader, w io.Writer) io.ReadWriteCloser {
	return &readWriter{Reader: r, Writer: w}
}

func (rw *readWriter) Close() error {
	rw.once.Do(func() {
		var errs []error
		if c, ok := rw.Writer.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		if c, ok := rw.Reader.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		rw.err = errors.Join(errs...)
	})
	return rw.err
}

// Stdio is the stream of a worker started by a client as a child process or
// as a remote SSH command: requests on stdin, replies on stdout. Logs must go
// to stderr while it is in use.
func Stdio() io.ReadWriteCloser {
	return ReadWriter(os.Stdin, os.Stdout)
}

type process struct {
	io.Reader
	stdin io.WriteCloser
	cmd   *exec.Cmd
}

// Command starts cmd and returns its stdout and stdin as one stream. Closing
// the stream closes stdin and waits for the process to exit. cmd.Stderr is
// left as the caller set it.
func Command(cmd *exec.Cmd) (io.ReadWriteCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindConnect, "start "+cmd.Path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, "start "+cmd.Path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, rpcerr.New(rpcerr.KindConnect, "start "+cmd.Path, err)
	}
	return &process{Reader: stdout, stdin: stdin, cmd: cmd}, nil
}

func (p *process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close closes stdin, which is the worker's signal to exit, then waits for it.
func (p *process) Close() error {
	err := p.stdin.Close()
	if werr := p.cmd.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}
