package audit

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("RERANK_API_KEY", "rk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("RERANK_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("VECTOR_STORE_PROVIDER", "qdrant"); got != "qdrant" {
		t.Errorf("expected 'qdrant', got %q", got)
	}
	if got := SanitiseKey("VECTOR_STORE_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.ragpipe/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.ragpipe/config.yaml" {
			t.Errorf("expected '~/.ragpipe/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("RERANK_API_KEY", "rk-super-secret")
	t.Setenv("VECTOR_STORE_PROVIDER", "memory")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "serve", "")

	out := buf.String()
	if strings.Contains(out, "rk-super-secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	if !strings.Contains(out, `"RERANK_API_KEY":"set"`) {
		t.Errorf("expected RERANK_API_KEY presence marker, got: %s", out)
	}
	if !strings.Contains(out, `"VECTOR_STORE_PROVIDER":"memory"`) {
		t.Errorf("expected plain operational value, got: %s", out)
	}
	if !strings.Contains(out, `"config_file":"none"`) {
		t.Errorf("expected config_file none, got: %s", out)
	}
}
