package version

import (
	"context"
	"fmt"
	"io"
	"strings"

	"voicelink/domain/app"
	"voicelink/infrastructure/network/handshake"
)

// Tag is set via ldflags by the release build.
var Tag = "version not set"

// Current returns the trimmed build tag.
func Current() string {
	return strings.TrimSpace(Tag)
}

type Runner struct {
	out io.Writer
}

func NewRunner(out io.Writer) *Runner { return &Runner{out: out} }

// Run prints the build tag and the client version announced to servers.
func (r *Runner) Run(_ context.Context) {
	_, _ = fmt.Fprintf(r.out, "%s %s\nannounces %s on %s\n",
		app.Name,
		Current(),
		handshake.ClientVersion,
		handshake.ClientPlatform,
	)
}
