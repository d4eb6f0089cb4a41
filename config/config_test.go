package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"duty/codec"
	"duty/transport"
)

const sample = `
listen: 0.0.0.0:9000
codec: cbor
heartbeat: 5s
middleware:
  log: true
  timeout: 2s
  rate_limit: 100
backends:
  - addr: 10.0.0.1:9000
  - addr: 10.0.0.2:9000
    weight: 3
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duty.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := New()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Network != "tcp" || c.Framing != FramingFrames || c.CodecType() != codec.CodecTypeJSON {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if len(c.Middlewares()) != 0 {
		t.Fatal("no middleware is configured by default")
	}
}

func TestLoad(t *testing.T) {
	c := New()
	if err := c.Load(writeFile(t, sample), nil); err != nil {
		t.Fatal(err)
	}
	if c.Listen != "0.0.0.0:9000" || c.CodecType() != codec.CodecTypeCBOR || c.Heartbeat != 5*time.Second {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.Middleware.Burst != 100 {
		t.Errorf("burst defaults to the rate, got %d", c.Middleware.Burst)
	}
	want := []Backend{{Addr: "10.0.0.1:9000", Weight: 1}, {Addr: "10.0.0.2:9000", Weight: 3}}
	if !reflect.DeepEqual(c.Backends, want) {
		t.Errorf("backends = %+v", c.Backends)
	}
	if got := c.Instances(); len(got) != 2 || got[1].Weight != 3 {
		t.Errorf("instances = %+v", got)
	}
	// log, rate limit, timeout
	if n := len(c.Middlewares()); n != 3 {
		t.Errorf("expect 3 middlewares, got %d", n)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	if err := New().Load(writeFile(t, "codecs: cbor\n"), nil); err == nil {
		t.Fatal("expect error for an unknown key")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for _, content := range []string{
		"codec: xml\n",
		"framing: lines\n",
		"network: udp\n",
		"log_level: loud\n",
		"balancer: random_walk\n",
		"backends:\n  - weight: 2\n",
	} {
		if err := New().Load(writeFile(t, content), nil); err == nil {
			t.Errorf("expect error for %q", content)
		}
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	c := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := c.BindFlags(fs); err != nil {
		t.Fatal(err)
	}
	if err := fs.Parse([]string{"--codec", "json", "-b", "127.0.0.1:1@2", "--backend", "127.0.0.1:2", "--timeout", "3s"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(writeFile(t, sample), fs); err != nil {
		t.Fatal(err)
	}
	if c.Codec != "json" {
		t.Errorf("codec = %q, the flag must win", c.Codec)
	}
	if c.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q, the file applies where no flag is set", c.Listen)
	}
	if c.Middleware.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", c.Middleware.Timeout)
	}
	want := []Backend{{Addr: "127.0.0.1:1", Weight: 2}, {Addr: "127.0.0.1:2", Weight: 1}}
	if !reflect.DeepEqual(c.Backends, want) {
		t.Errorf("backends = %+v", c.Backends)
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("DUTY_CODEC", "cbor")
	t.Setenv("DUTY_LOG_LEVEL", "debug")
	c := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := c.BindFlags(fs); err != nil {
		t.Fatal(err)
	}
	if c.Codec != "cbor" || c.LogLevel != "debug" {
		t.Fatalf("environment ignored: %+v", c)
	}
	if !fs.Changed("codec") {
		t.Fatal("an environment value counts as a set flag")
	}

	t.Setenv("DUTY_BURST", "many")
	if err := New().BindFlags(pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Fatal("expect error for an invalid environment value")
	}
}

func TestBackendFlag(t *testing.T) {
	var bs []Backend
	v := &backendsValue{backends: &bs}
	if err := v.Set("a:1@4,b:2"); err != nil {
		t.Fatal(err)
	}
	if v.String() != "a:1@4,b:2@1" {
		t.Errorf("String() = %q", v.String())
	}
	for _, bad := range []string{"", "a:1@0", "a:1@x", "@3"} {
		if err := v.Set(bad); err == nil {
			t.Errorf("expect error for %q", bad)
		}
	}
}

func TestTransports(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	c := New()
	if _, ok := c.ClientTransport(a).(*transport.ClientTransport); !ok {
		t.Error("frames framing must build a ClientTransport")
	}
	if _, ok := c.ServerTransport(b).(*transport.ServerTransport); !ok {
		t.Error("frames framing must build a ServerTransport")
	}
	c.Framing = FramingStream
	if _, ok := c.ClientTransport(a).(*transport.Stream); !ok {
		t.Error("stream framing must build a Stream")
	}
}
