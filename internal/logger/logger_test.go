package logger

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs f with os.Stdout redirected to a pipe and returns the output.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	f()

	_ = w.Close()
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func TestLogger_EmitsServiceTaggedJSON(t *testing.T) {
	out := captureStdout(t, func() {
		log := New("spruce-sync")
		log.Info().Str("run_id", "r1").Msg("full sync starting")
	})

	line := strings.TrimSpace(out)
	if line == "" {
		t.Fatalf("no output captured")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("invalid json log: %v\n%s", err, line)
	}
	if svc, ok := payload["service"].(string); !ok || svc != "spruce-sync" {
		t.Fatalf("expected service=\"spruce-sync\", got %v", payload["service"])
	}
	if _, ok := payload["time"]; !ok {
		t.Fatalf("expected timestamp field: %s", line)
	}
}
