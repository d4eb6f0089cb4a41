package transport

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"duty/rpcerr"
)

// SSHConfig describes how to reach a remote worker.
type SSHConfig struct {
	User string
	// KeyFile is a private key tried first. If it is empty or fails to load,
	// the running ssh-agent (SSH_AUTH_SOCK) is used instead.
	KeyFile string
	// KnownHosts defaults to ~/.ssh/known_hosts.
	KnownHosts string
	// HostKeyCallback overrides KnownHosts when set.
	HostKeyCallback ssh.HostKeyCallback
}

func (c *SSHConfig) clientConfig() (*ssh.ClientConfig, io.Closer, error) {
	var auth []ssh.AuthMethod
	var agentConn io.Closer

	if c.KeyFile != "" {
		if key, err := os.ReadFile(c.KeyFile); err == nil {
			if signer, err := ssh.ParsePrivateKey(key); err == nil {
				auth = append(auth, ssh.PublicKeys(signer))
			} else {
				log.Warn().Err(err).Str("key", c.KeyFile).Msg("unable to parse private key, falling back to agent")
			}
		} else {
			log.Warn().Err(err).Str("key", c.KeyFile).Msg("unable to read private key, falling back to agent")
		}
	}
	if len(auth) == 0 {
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, nil, rpcerr.Errorf(rpcerr.KindConnect, "ssh", "no usable key file and SSH_AUTH_SOCK is not set")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, nil, rpcerr.New(rpcerr.KindConnect, "ssh agent", err)
		}
		agentConn = conn
		auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}

	hostKey := c.HostKeyCallback
	if hostKey == nil {
		path := c.KnownHosts
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				closeQuietly(agentConn)
				return nil, nil, rpcerr.New(rpcerr.KindConnect, "ssh", err)
			}
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
		cb, err := knownhosts.New(path)
		if err != nil {
			closeQuietly(agentConn)
			return nil, nil, rpcerr.New(rpcerr.KindConnect, "ssh known hosts", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}, agentConn, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}

type sshStream struct {
	io.Reader
	stdin   io.WriteCloser
	session *ssh.Session
	client  *ssh.Client
}

// DialSSH connects to addr, runs command and returns the command's stdout and
// stdin as one stream. The remote command is expected to serve requests on its
// standard streams, see Stdio.
func DialSSH(ctx context.Context, addr string, cfg SSHConfig, command string) (io.ReadWriteCloser, error) {
	op := "ssh " + addr
	clientConfig, agentConn, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	// The agent is only needed during the handshake.
	defer closeQuietly(agentConn)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindConnect, op, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, op, err)
	}
	client := ssh.NewClient(c, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, op, err)
	}
	session.Stderr = os.Stderr
	stdin, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, op, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, op, err)
	}
	if err := session.Start(command); err != nil {
		client.Close()
		return nil, rpcerr.New(rpcerr.KindConnect, op, err)
	}
	return &sshStream{Reader: stdout, stdin: stdin, session: session, client: client}, nil
}

func (s *sshStream) Write(b []byte) (int, error) {
	return s.stdin.Write(b)
}

func (s *sshStream) Close() error {
	s.stdin.Close()
	s.session.Close()
	return s.client.Close()
}
