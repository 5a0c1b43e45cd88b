package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saittam/debsync/internal/config"
)

// newDirectRunner returns a runner without an isolation wrapper so the tests
// exercise the capture and profile logic with plain executables.
func newDirectRunner(tools ...string) *ExecRunner {
	profiles := make(map[string][]string, len(tools))
	for _, tool := range tools {
		profiles[tool] = nil
	}

	return NewExecRunner(&config.Sandbox{Profiles: profiles})
}

// TestRunCapturesStdout verifies successful runs return captured output.
func TestRunCapturesStdout(t *testing.T) {
	t.Parallel()

	runner := newDirectRunner("sh")

	out, err := runner.Run(context.Background(), "", 1024, "sh", "-c", "printf hello")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

// TestRunRefusesUnknownTool verifies profile resolution is mandatory.
func TestRunRefusesUnknownTool(t *testing.T) {
	t.Parallel()

	runner := newDirectRunner("sh")

	_, err := runner.Run(context.Background(), "", 1024, "curl", "https://example.com")
	require.ErrorIs(t, err, ErrNoProfile)
}

// TestRunSurfacesStderrOnFailure verifies the failing tool's diagnostics are
// included in the returned error.
func TestRunSurfacesStderrOnFailure(t *testing.T) {
	t.Parallel()

	runner := newDirectRunner("sh")

	_, err := runner.Run(context.Background(), "", 1024, "sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)
	require.Contains(t, err.Error(), "oops")
}

// TestRunTruncationIsFatal verifies output beyond the ceiling fails the run
// instead of returning a silently shortened result.
func TestRunTruncationIsFatal(t *testing.T) {
	t.Parallel()

	runner := newDirectRunner("sh")

	_, err := runner.Run(context.Background(), "", 4, "sh", "-c", "printf 'way too much output'")
	require.ErrorIs(t, err, ErrOutputTruncated)
}

// TestRunHonorsWorkingDirectory verifies the dir parameter changes the tool's
// working directory.
func TestRunHonorsWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := newDirectRunner("sh")

	out, err := runner.Run(context.Background(), dir, 1024, "sh", "-c", "pwd")
	require.NoError(t, err)
	require.Equal(t, dir+"\n", string(out))
}

// TestCappedBuffer verifies the discard-beyond-limit behavior directly.
func TestCappedBuffer(t *testing.T) {
	t.Parallel()

	buf := newCappedBuffer(5)

	n, err := buf.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.False(t, buf.Truncated())

	n, err = buf.Write([]byte("defgh"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.True(t, buf.Truncated())
	require.Equal(t, "abcde", buf.String())
}
