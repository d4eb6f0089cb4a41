package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"duty/config"
	"duty/examples/ttvcalc"
	"duty/transport"
)

// dialConn opens a stream to addr over the configured network.
func dialConn(ctx context.Context, cfg *config.Config, addr string) (io.ReadWriteCloser, error) {
	if cfg.Network == "websocket" {
		url := addr
		if !strings.Contains(url, "://") {
			url = "ws://" + addr + "/duty"
		}
		return transport.DialWebsocket(ctx, url, nil)
	}
	var d net.Dialer
	return d.DialContext(ctx, cfg.Network, addr)
}

func netCommand(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "net ADDR",
		Short: "Calls a worker listening on ADDR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dialConn(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			c := ttvcalc.NewTtvCalcClient(cfg.ClientTransport(conn))
			return calculate(cmd.Context(), cmd.Flags(), c, opts)
		},
	}
}

func localCommand(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "local -- COMMAND [ARGS...]",
		Short: "Starts a worker as a child process and talks to it over its stdin/stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
			proc.Stderr = os.Stderr
			rw, err := transport.Command(proc)
			if err != nil {
				return err
			}
			c := ttvcalc.NewTtvCalcClient(cfg.ClientTransport(rw))
			return calculate(cmd.Context(), cmd.Flags(), c, opts)
		},
	}
}

func sshCommand(cfg *config.Config, opts *options) *cobra.Command {
	var sc transport.SSHConfig
	var insecure bool
	cmd := &cobra.Command{
		Use:   "ssh HOST[:PORT] COMMAND",
		Short: "Starts a worker on a remote host and talks to it over the ssh session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := args[0]
			if _, _, err := net.SplitHostPort(addr); err != nil {
				addr = net.JoinHostPort(addr, "22")
			}
			if sc.User == "" {
				sc.User = os.Getenv("USER")
			}
			if insecure {
				sc.HostKeyCallback = ssh.InsecureIgnoreHostKey()
			}
			rw, err := transport.DialSSH(cmd.Context(), addr, sc, args[1])
			if err != nil {
				return err
			}
			c := ttvcalc.NewTtvCalcClient(cfg.ClientTransport(rw))
			return calculate(cmd.Context(), cmd.Flags(), c, opts)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&sc.User, "user", "u", "", "remote user, default $USER")
	fs.StringVarP(&sc.KeyFile, "key", "i", "", "private key file; the ssh agent is used when empty")
	fs.StringVar(&sc.KnownHosts, "known-hosts", "", "known_hosts file, default ~/.ssh/known_hosts")
	fs.BoolVar(&insecure, "insecure", false, "skip host key verification")
	return cmd
}
