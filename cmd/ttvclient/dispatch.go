package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"duty/client"
	"duty/config"
	"duty/dispatcher"
	"duty/examples/ttvcalc"
	"duty/loadbalance"
	"duty/procedure"
	"duty/transport"
)

func dispatchCommand(cfg *config.Config, opts *options) *cobra.Command {
	var chunks, streams int
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Splits the range into chunks and routes them over the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.Backends) == 0 {
				return errors.New("no backends configured, use --backend or the config file")
			}
			values, err := dispatch(cmd.Context(), cfg, opts, cmd.Flags().Changed("factor"), chunks, streams)
			if err != nil {
				return err
			}
			fmt.Println(values)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunks, "chunks", 0, "number of chunks, default 4 per member")
	cmd.Flags().IntVar(&streams, "streams", 1, "yamux streams per backend connection; workers need --mux when above 1")
	return cmd
}

// muxDialer shares one multiplexed connection per backend address and hands
// out a new stream on every dial.
type muxDialer struct {
	cfg      *config.Config
	mu       sync.Mutex
	sessions map[string]*transport.MuxSession
}

func (m *muxDialer) dial(ctx context.Context, addr string) (transport.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[addr]
	if !ok {
		conn, err := dialConn(ctx, m.cfg, addr)
		if err != nil {
			return nil, err
		}
		if s, err = transport.Mux(conn); err != nil {
			return nil, err
		}
		m.sessions[addr] = s
	}
	stream, err := s.Open()
	if err != nil {
		return nil, err
	}
	return m.cfg.ClientTransport(stream), nil
}

func (m *muxDialer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.Close()
	}
}

func dispatch(ctx context.Context, cfg *config.Config, opts *options, setFactor bool, chunks, streams int) ([]float64, error) {
	if opts.to < opts.from {
		return nil, errors.Errorf("invalid range [%d, %d)", opts.from, opts.to)
	}
	dial := func(ctx context.Context, addr string) (transport.Transport, error) {
		conn, err := dialConn(ctx, cfg, addr)
		if err != nil {
			return nil, err
		}
		return cfg.ClientTransport(conn), nil
	}
	instances := cfg.Instances()
	if streams > 1 {
		md := &muxDialer{cfg: cfg, sessions: map[string]*transport.MuxSession{}}
		defer md.Close()
		dial = md.dial
		var expanded []loadbalance.Instance
		for _, in := range instances {
			for i := 0; i < streams; i++ {
				expanded = append(expanded, in)
			}
		}
		instances = expanded
	}

	d, err := dispatcher.DialAll(ctx, instances, dial)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	balancer, err := cfg.NewBalancer()
	if err != nil {
		return nil, err
	}
	d.UseBalancer(balancer)

	if setFactor {
		set := procedure.With(&ttvcalc.TtvCalcSetFactorArgs{Factor: opts.factor}, procedure.First[struct{}])
		if _, err := dispatcher.Dispatch(d, set).GetContext(ctx); err != nil {
			return nil, err
		}
	}

	if chunks <= 0 {
		chunks = 4 * d.Len()
	}
	var handles []*client.CallHandle[[]float64]
	for _, r := range split(opts.from, opts.to, chunks) {
		p := procedure.With[[]float64](&ttvcalc.TtvCalcTtvCalcArgs{From: r[0], To: r[1]}, nil)
		h, err := dispatcher.Route(d, p)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}

	var out []float64
	for i, h := range handles {
		values, err := h.GetContext(ctx)
		if err != nil {
			for _, rest := range handles[i+1:] {
				rest.Cancel()
			}
			return nil, err
		}
		out = append(out, values...)
	}
	log.Debug().Int("members", d.Len()).Int("chunks", len(handles)).Str("balancer", balancer.Name()).Msg("dispatched")
	return out, nil
}

// split cuts [from, to) into at most n contiguous ranges of nearly equal size.
func split(from, to uint64, n int) [][2]uint64 {
	total := to - from
	if total == 0 {
		return nil
	}
	if uint64(n) > total {
		n = int(total)
	}
	out := make([][2]uint64, 0, n)
	size, rem := total/uint64(n), total%uint64(n)
	lo := from
	for i := 0; i < n; i++ {
		hi := lo + size
		if uint64(i) < rem {
			hi++
		}
		out = append(out, [2]uint64{lo, hi})
		lo = hi
	}
	return out
}
