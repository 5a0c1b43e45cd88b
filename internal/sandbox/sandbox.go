package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/saittam/debsync/internal/config"
)

const (
	// MaxArtifactBytes is the hard ceiling for captured artifact downloads.
	MaxArtifactBytes = 512 << 20

	// MaxMetadataBytes is the hard ceiling for captured metadata and
	// signature responses.
	MaxMetadataBytes = 10 << 10

	// maxStderrBytes bounds the diagnostic stream kept for failure reports.
	maxStderrBytes = 64 << 10
)

var (
	// ErrNoProfile is returned when a tool has no configured restriction profile.
	ErrNoProfile = errors.New("no sandbox profile for tool")
	// ErrOutputTruncated is returned when a tool produced more output than allowed.
	ErrOutputTruncated = errors.New("tool output exceeded size limit")
)

// Runner executes an external tool under a named restriction profile.
type Runner interface {
	// Run executes tool with args in dir (empty means the inherited working
	// directory), capturing at most limit bytes of standard output.
	// Output beyond the limit is discarded and reported as a fatal error.
	Run(ctx context.Context, dir string, limit int64, tool string, args ...string) ([]byte, error)
}

// ExecRunner runs tools through the configured isolation wrapper.
// The wrapper argv (privilege drop + isolation mechanism) and the per-tool
// profile arguments both come from configuration, so the pipeline stays
// decoupled from the isolation mechanism itself.
type ExecRunner struct {
	// wrapper is the argv prefix applied to every invocation.
	wrapper []string
	// profiles maps tool names to their profile-specific wrapper arguments.
	profiles map[string][]string
}

// NewExecRunner creates a runner from the sandbox configuration.
func NewExecRunner(cfg *config.Sandbox) *ExecRunner {
	profiles := make(map[string][]string, len(cfg.Profiles))
	for tool, args := range cfg.Profiles {
		profiles[tool] = append([]string(nil), args...)
	}

	return &ExecRunner{
		wrapper:  append([]string(nil), cfg.Wrapper...),
		profiles: profiles,
	}
}

// Run implements Runner. Standard error is captured separately and surfaced
// only when the command fails, keeping successful runs quiet while preserving
// the failing tool's own diagnostics.
func (r *ExecRunner) Run(ctx context.Context, dir string, limit int64, tool string, args ...string) ([]byte, error) {
	profile, ok := r.profiles[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProfile, tool)
	}

	argv := make([]string, 0, len(r.wrapper)+len(profile)+len(args)+1)
	argv = append(argv, r.wrapper...)
	argv = append(argv, profile...)
	argv = append(argv, tool)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var (
		stdout = newCappedBuffer(limit)
		stderr = newCappedBuffer(maxStderrBytes)
	)

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		diagnostics := strings.TrimSpace(stderr.String())
		if diagnostics == "" {
			return nil, fmt.Errorf("%s failed: %w", tool, err)
		}

		return nil, fmt.Errorf("%s failed: %w\n%s", tool, err, diagnostics)
	}

	if stdout.Truncated() {
		return nil, fmt.Errorf("%w: %s produced more than %d bytes", ErrOutputTruncated, tool, limit)
	}

	return stdout.Bytes(), nil
}

// cappedBuffer keeps at most limit bytes and counts the rest instead of
// buffering it, so a misbehaving upstream cannot exhaust memory.
type cappedBuffer struct {
	limit int64
	total int64
	buf   bytes.Buffer
}

func newCappedBuffer(limit int64) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

// Write never fails; excess bytes are discarded.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.total += int64(n)

	if remaining := b.limit - int64(b.buf.Len()); remaining > 0 {
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}

		b.buf.Write(p)
	}

	return n, nil
}

// Truncated reports whether more than limit bytes were written.
func (b *cappedBuffer) Truncated() bool {
	return b.total > b.limit
}

// Bytes returns the captured output.
func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// String returns the captured output as text.
func (b *cappedBuffer) String() string {
	return b.buf.String()
}
