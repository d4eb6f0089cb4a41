// Command ttvworker serves the TtvCalc service. With --stdio it serves a
// single connection on stdin/stdout, which is how ttvclient runs it as a
// local process or over ssh. Otherwise it listens on --network/--listen.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"duty/config"
	"duty/examples/ttvcalc"
	"duty/logging"
	"duty/server"
	"duty/transport"
)

var log = logging.NewDomain("ttvworker")

type options struct {
	configFile string
	factor     float64
	stdio      bool
	mux        bool
	grace      time.Duration
}

func newCommand() *cobra.Command {
	cfg := config.New()
	var opts options
	cmd := &cobra.Command{
		Use:   "ttvworker",
		Short: "Serves the TtvCalc service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configFile != "" {
				if err := cfg.Load(opts.configFile, cmd.Flags()); err != nil {
					return err
				}
			} else if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ApplyLogging(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	fs.Float64Var(&opts.factor, "factor", 1.5, "scale factor")
	fs.BoolVar(&opts.stdio, "stdio", false, "serve one connection on stdin/stdout")
	fs.BoolVar(&opts.mux, "mux", false, "serve every yamux stream of a connection separately")
	fs.DurationVar(&opts.grace, "grace", 5*time.Second, "how long shutdown waits for clients")
	if err := cfg.BindFlags(fs); err != nil {
		log.Fatal().Err(err).Msg("invalid environment")
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	h := ttvcalc.NewTtvCalcServer(ttvcalc.NewCalculator(opts.factor), cfg.Middlewares()...)

	if opts.stdio {
		t := cfg.ServerTransport(transport.Stdio())
		defer t.Close()
		return server.ServeTransport(ctx, t, h)
	}

	lopts := []server.ListenerOption{server.WithTransport(func(conn net.Conn) transport.Transport {
		return cfg.ServerTransport(conn)
	})}
	if opts.mux {
		lopts = append(lopts, server.WithMux())
	}
	l := server.NewListener(h, lopts...)

	ln, closeLn, err := listen(cfg)
	if err != nil {
		return err
	}
	defer closeLn()

	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx, ln) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	if err := l.Shutdown(opts.grace); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}
	return <-served
}

// listen opens the configured listener. For websocket it also starts the
// HTTP server that feeds it; the returned func stops that server.
func listen(cfg *config.Config) (net.Listener, func(), error) {
	if cfg.Network != "websocket" {
		ln, err := net.Listen(cfg.Network, cfg.Listen)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "listen %s %s", cfg.Network, cfg.Listen)
		}
		return ln, func() {}, nil
	}

	tcp, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "listen %s", cfg.Listen)
	}
	ws := transport.NewWebsocketListener(tcp.Addr())
	mux := http.NewServeMux()
	mux.Handle("/duty", ws)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(tcp); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
	return ws, func() { srv.Close() }, nil
}

func main() {
	if err := newCommand().Execute(); err != nil {
		logging.Err(err).Msg("ttvworker failed")
		os.Exit(1)
	}
}
