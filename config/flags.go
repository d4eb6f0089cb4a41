package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// BindFlags registers a flag for every setting on fs, bound to c. A DUTY_*
// environment variable counts as the flag being set, e.g. DUTY_CODEC=cbor
// acts like --codec cbor.
func (c *Config) BindFlags(fs *pflag.FlagSet) error {
	fs.StringVarP(&c.Listen, "listen", "l", c.Listen, "address to listen on")
	fs.StringVar(&c.Network, "network", c.Network, "tcp, unix or websocket")
	fs.StringVar(&c.Codec, "codec", c.Codec, "json or cbor")
	fs.StringVar(&c.Framing, "framing", c.Framing, "frames or stream")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "client heartbeat interval, 0 disables")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace, debug, info, warn or error")
	fs.StringVar(&c.Balancer, "balancer", c.Balancer, "round_robin or weighted_random")
	fs.BoolVar(&c.Middleware.Log, "log-requests", c.Middleware.Log, "log every request")
	fs.DurationVar(&c.Middleware.Timeout, "timeout", c.Middleware.Timeout, "per-request handler timeout")
	fs.Float64Var(&c.Middleware.RateLimit, "rate-limit", c.Middleware.RateLimit, "requests per second, 0 is unlimited")
	fs.IntVar(&c.Middleware.Burst, "burst", c.Middleware.Burst, "rate limit burst")
	fs.IntVar(&c.Middleware.Retries, "retries", c.Middleware.Retries, "handler retries on transient errors")
	fs.DurationVar(&c.Middleware.RetryDelay, "retry-delay", c.Middleware.RetryDelay, "first retry delay, doubled each attempt")
	fs.VarP(&backendsValue{backends: &c.Backends}, "backend", "b", "backend addr[@weight], repeatable")

	var err error
	fs.VisitAll(func(fl *pflag.Flag) {
		if v, ok := os.LookupEnv(envName(fl.Name)); ok && err == nil {
			if e := fs.Set(fl.Name, v); e != nil {
				err = errors.Wrapf(e, "%s", envName(fl.Name))
			}
		}
	})
	return err
}

// backendsValue parses addr[@weight] lists. The first Set replaces the
// default list, later ones append.
type backendsValue struct {
	backends *[]Backend
	changed  bool
}

func parseBackend(s string) (Backend, error) {
	addr, weight, ok := strings.Cut(strings.TrimSpace(s), "@")
	b := Backend{Addr: addr, Weight: 1}
	if addr == "" {
		return b, errors.Errorf("empty backend address in %q", s)
	}
	if ok {
		w, err := strconv.Atoi(weight)
		if err != nil || w <= 0 {
			return b, errors.Errorf("invalid weight in %q", s)
		}
		b.Weight = w
	}
	return b, nil
}

func (v *backendsValue) Set(s string) error {
	var parsed []Backend
	for _, part := range strings.Split(s, ",") {
		b, err := parseBackend(part)
		if err != nil {
			return err
		}
		parsed = append(parsed, b)
	}
	if !v.changed {
		*v.backends = nil
		v.changed = true
	}
	*v.backends = append(*v.backends, parsed...)
	return nil
}

func (v *backendsValue) Type() string { return "backends" }

func (v *backendsValue) String() string {
	return strings.Join(v.GetSlice(), ",")
}

func (v *backendsValue) GetSlice() []string {
	out := make([]string, len(*v.backends))
	for i, b := range *v.backends {
		out[i] = b.Addr + "@" + strconv.Itoa(max(b.Weight, 1))
	}
	return out
}

func (v *backendsValue) Append(s string) error {
	b, err := parseBackend(s)
	if err != nil {
		return err
	}
	*v.backends = append(*v.backends, b)
	return nil
}

func (v *backendsValue) Replace(ss []string) error {
	out := make([]Backend, 0, len(ss))
	for _, s := range ss {
		b, err := parseBackend(s)
		if err != nil {
			return err
		}
		out = append(out, b)
	}
	*v.backends = out
	return nil
}
