package version

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"voicelink/domain/app"
	"voicelink/infrastructure/network/handshake"
)

func TestRunner_Run_PrintsVersion(t *testing.T) {
	prevTag := Tag
	t.Cleanup(func() { Tag = prevTag })

	Tag = "v1.2.3-test" // imitate ldflags injection

	var out bytes.Buffer
	NewRunner(&out).Run(context.Background())

	if want := app.Name + " v1.2.3-test"; !strings.Contains(out.String(), want) {
		t.Fatalf("output = %q, want substring %q", out.String(), want)
	}
	if !strings.Contains(out.String(), handshake.ClientVersion) {
		t.Fatalf("output = %q, want the announced client version", out.String())
	}
}

func TestCurrent(t *testing.T) {
	prevTag := Tag
	t.Cleanup(func() { Tag = prevTag })

	Tag = " v0.3.0 "
	if got := Current(); got != "v0.3.0" {
		t.Fatalf("expected trimmed tag, got %q", got)
	}

	Tag = ""
	if got := Current(); got != "" {
		t.Fatalf("expected empty value for empty tag, got %q", got)
	}
}
