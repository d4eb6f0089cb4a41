package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDomainField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	NewDomain("server").Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"dom":"server"`) {
		t.Fatalf("expect domain field in %q", out)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("expect message in %q", out)
	}
}

func TestErrStack(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	ErrStack(errors.New("boom")).Msg("failed")
	if !strings.Contains(buf.String(), `"stack"`) {
		t.Fatalf("expect stack field in %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	if err != nil || lvl != LevelInfo {
		t.Fatalf("empty level: got %v, %v", lvl, err)
	}
	lvl, err = ParseLevel("DEBUG")
	if err != nil || lvl != LevelDebug {
		t.Fatalf("DEBUG: got %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expect error for unknown level")
	}
}
