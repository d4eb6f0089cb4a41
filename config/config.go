// Package config holds the settings shared by the duty commands. Values come
// from, in increasing priority: defaults, a YAML file, DUTY_* environment
// variables, and command-line flags.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"duty/codec"
	"duty/loadbalance"
	"duty/logging"
	"duty/middleware"
	"duty/transport"
)

const (
	FramingFrames = "frames" // length-prefixed frames with sequence numbers
	FramingStream = "stream" // self-delimiting codec values
)

const EnvPrefix = "DUTY_"

type Config struct {
	Listen    string        `yaml:"listen"`
	Network   string        `yaml:"network"` // tcp, unix or websocket
	Codec     string        `yaml:"codec"`   // json or cbor
	Framing   string        `yaml:"framing"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	LogLevel  string        `yaml:"log_level"`
	Balancer  string        `yaml:"balancer"`

	Middleware Middleware `yaml:"middleware"`
	Backends   []Backend  `yaml:"backends"`
}

// Middleware configures the server-side chain. Zero values leave the
// corresponding middleware out.
type Middleware struct {
	Log        bool          `yaml:"log"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second
	Burst      int           `yaml:"burst"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type Backend struct {
	Addr   string `yaml:"addr"`
	Weight int    `yaml:"weight"`
}

// New returns a Config holding the defaults.
func New() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:7070"
	}
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	if c.Framing == "" {
		c.Framing = FramingFrames
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Middleware.RateLimit > 0 && c.Middleware.Burst <= 0 {
		c.Middleware.Burst = max(1, int(c.Middleware.RateLimit))
	}
	if c.Middleware.Retries > 0 && c.Middleware.RetryDelay <= 0 {
		c.Middleware.RetryDelay = 50 * time.Millisecond
	}
	for i := range c.Backends {
		if c.Backends[i].Weight <= 0 {
			c.Backends[i].Weight = 1
		}
	}
}

func (c *Config) Validate() error {
	if _, err := codec.Parse(c.Codec); err != nil {
		return errors.Wrap(err, "codec")
	}
	switch c.Framing {
	case FramingFrames, FramingStream:
	default:
		return errors.Errorf("framing: unknown framing %q", c.Framing)
	}
	switch c.Network {
	case "tcp", "tcp4", "tcp6", "unix", "websocket":
	default:
		return errors.Errorf("network: unsupported network %q", c.Network)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if _, err := loadbalance.ByName(c.Balancer); err != nil {
		return errors.Wrap(err, "balancer")
	}
	for _, b := range c.Backends {
		if b.Addr == "" {
			return errors.New("backends: empty address")
		}
	}
	return nil
}

// Decode reads YAML from r over c. Unknown keys are an error.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.Wrap(err, "decode config")
	}
	return nil
}

// Load reads the YAML file at path over c. Flags already set on fs keep their
// values. Defaults are filled and the result validated.
func (c *Config) Load(path string, fs *pflag.FlagSet) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	// Remember explicit flags; the file must not override them.
	type saved struct {
		value string
		slice []string
	}
	explicit := map[string]saved{}
	if fs != nil {
		fs.Visit(func(fl *pflag.Flag) {
			s := saved{value: fl.Value.String()}
			if sv, ok := fl.Value.(pflag.SliceValue); ok {
				s.slice = sv.GetSlice()
			}
			explicit[fl.Name] = s
		})
	}

	if err := c.Decode(f); err != nil {
		return errors.Wrap(err, path)
	}

	for name, s := range explicit {
		fl := fs.Lookup(name)
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			err = sv.Replace(s.slice)
		} else {
			err = fl.Value.Set(s.value)
		}
		if err != nil {
			return errors.Wrapf(err, "flag --%s", name)
		}
	}

	c.SetDefaults()
	return c.Validate()
}

// ApplyLogging sets the global log level.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	return nil
}

func (c *Config) CodecType() codec.CodecType {
	ct, _ := codec.Parse(c.Codec)
	return ct
}

// ClientTransport wraps a connection to a server in the configured framing.
func (c *Config) ClientTransport(conn io.ReadWriteCloser) transport.Transport {
	if c.Framing == FramingStream {
		return transport.NewStream(conn, c.CodecType())
	}
	return transport.NewClientTransport(conn, c.CodecType(), transport.WithHeartbeat(c.Heartbeat))
}

// ServerTransport wraps an accepted connection in the configured framing.
func (c *Config) ServerTransport(conn io.ReadWriteCloser) transport.Transport {
	if c.Framing == FramingStream {
		return transport.NewStream(conn, c.CodecType())
	}
	return transport.NewServerTransport(conn, transport.WithCodec(c.CodecType()))
}

// Middlewares builds the configured server chain, outermost first.
func (c *Config) Middlewares() []middleware.Middleware {
	m := c.Middleware
	var mws []middleware.Middleware
	if m.Log {
		mws = append(mws, middleware.Logging(logging.NewDomain("request")))
	}
	if m.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(m.RateLimit, m.Burst))
	}
	if m.Retries > 0 {
		mws = append(mws, middleware.Retry(m.Retries, m.RetryDelay))
	}
	if m.Timeout > 0 {
		mws = append(mws, middleware.Timeout(m.Timeout))
	}
	return mws
}

func (c *Config) Instances() []loadbalance.Instance {
	out := make([]loadbalance.Instance, len(c.Backends))
	for i, b := range c.Backends {
		out[i] = loadbalance.Instance{Addr: b.Addr, Weight: b.Weight}
	}
	return out
}

func (c *Config) NewBalancer() (loadbalance.Balancer, error) {
	return loadbalance.ByName(c.Balancer)
}

func envName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
