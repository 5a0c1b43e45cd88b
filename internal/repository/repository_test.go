package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saittam/debsync/internal/config"
)

// stubRunner is a sandbox.Runner returning a canned index and recording the
// invocation.
type stubRunner struct {
	output []byte
	err    error

	dir   string
	tool  string
	args  []string
	limit int64
}

func (s *stubRunner) Run(_ context.Context, dir string, limit int64, tool string, args ...string) ([]byte, error) {
	s.dir = dir
	s.tool = tool
	s.args = args
	s.limit = limit

	return s.output, s.err
}

func testRepository(t *testing.T, runner *stubRunner) *Repository {
	t.Helper()

	cfg := &config.Config{
		RepositoryRoot: t.TempDir(),
		Architecture:   "amd64",
	}

	return New(runner, cfg)
}

// writeSource places artifact bytes in a working area and returns their path
// and pinning checksum, the state Publish receives after verification.
func writeSource(t *testing.T, data []byte) (string, []byte) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "widget-1.2.3-amd64.deb")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	sum, err := Checksum(data)
	require.NoError(t, err)

	return path, sum
}

// TestIsStale verifies the freshness comparison over the published mtime.
func TestIsStale(t *testing.T) {
	t.Parallel()

	upstream := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		mtime time.Time
		want  bool
	}{
		{
			name:  "older_local_is_stale",
			mtime: upstream.Add(-time.Hour),
			want:  true,
		},
		{
			name:  "equal_mtime_is_current",
			mtime: upstream,
			want:  false,
		},
		{
			name:  "newer_local_is_current",
			mtime: upstream.Add(time.Hour),
			want:  false,
		},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := testRepository(t, &stubRunner{})

			require.NoError(t, os.MkdirAll(repo.Dir(), 0o755))

			path := repo.ArtifactPath("widget-1.2.3-amd64.deb")
			require.NoError(t, os.WriteFile(path, []byte("published"), 0o644))
			require.NoError(t, os.Chtimes(path, tt.mtime, tt.mtime))

			stale, err := repo.IsStale("widget-1.2.3-amd64.deb", upstream)
			require.NoError(t, err)
			require.Equal(t, tt.want, stale)
		})
	}
}

// TestIsStaleMissingArtifact verifies a never-published artifact is stale.
func TestIsStaleMissingArtifact(t *testing.T) {
	t.Parallel()

	repo := testRepository(t, &stubRunner{})

	stale, err := repo.IsStale("widget-1.2.3-amd64.deb", time.Now())
	require.NoError(t, err)
	require.True(t, stale)
}

// TestPublish verifies the full publish path: install, mtime pinning, and
// index regeneration through the sandbox.
func TestPublish(t *testing.T) {
	t.Parallel()

	index := []byte("Package: widget\nVersion: 1.2.3\n")
	runner := &stubRunner{output: index}
	repo := testRepository(t, runner)

	data := []byte("artifact bytes")
	source, sum := writeSource(t, data)
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := repo.Publish(context.Background(), "widget-1.2.3-amd64.deb", source, sum, updated)
	require.NoError(t, err)

	final := repo.ArtifactPath("widget-1.2.3-amd64.deb")

	published, err := os.ReadFile(final)
	require.NoError(t, err)
	require.Equal(t, data, published)

	info, err := os.Stat(final)
	require.NoError(t, err)
	require.Equal(t, updated.Unix(), info.ModTime().Unix())

	// Index regeneration runs in the architecture directory and its output
	// becomes the published index.
	require.Equal(t, "apt-ftparchive", runner.tool)
	require.Equal(t, []string{"packages", "."}, runner.args)
	require.Equal(t, repo.Dir(), runner.dir)
	require.Equal(t, int64(MaxIndexBytes), runner.limit)

	publishedIndex, err := os.ReadFile(filepath.Join(repo.Dir(), IndexFilename))
	require.NoError(t, err)
	require.Equal(t, index, publishedIndex)

	// No staging or backup leftovers.
	require.NoFileExists(t, final+".new")
	require.NoFileExists(t, filepath.Join(repo.Dir(), IndexFilename+".old"))
}

// TestPublishChecksumMismatch verifies bytes that differ from the verified
// checksum never reach the repository.
func TestPublishChecksumMismatch(t *testing.T) {
	t.Parallel()

	repo := testRepository(t, &stubRunner{})

	source, _ := writeSource(t, []byte("artifact bytes"))
	wrong, err := Checksum([]byte("other bytes"))
	require.NoError(t, err)

	err = repo.Publish(context.Background(), "widget-1.2.3-amd64.deb", source, wrong, time.Now())
	require.ErrorIs(t, err, errChecksumMismatch)

	require.NoFileExists(t, repo.ArtifactPath("widget-1.2.3-amd64.deb"))
}

// TestPublishIndexFailure verifies a failed index regeneration is fatal.
func TestPublishIndexFailure(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{err: errors.New("apt-ftparchive exploded")}
	repo := testRepository(t, runner)

	source, sum := writeSource(t, []byte("artifact bytes"))

	err := repo.Publish(context.Background(), "widget-1.2.3-amd64.deb", source, sum, time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "generate package index")
}

// TestPublishMakesRerunCurrent verifies mtime pinning closes the freshness
// gate for an unchanged upstream.
func TestPublishMakesRerunCurrent(t *testing.T) {
	t.Parallel()

	repo := testRepository(t, &stubRunner{output: []byte("index")})

	source, sum := writeSource(t, []byte("artifact bytes"))
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Publish(context.Background(), "widget-1.2.3-amd64.deb", source, sum, updated))

	stale, err := repo.IsStale("widget-1.2.3-amd64.deb", updated)
	require.NoError(t, err)
	require.False(t, stale)

	stale, err = repo.IsStale("widget-1.2.3-amd64.deb", updated.Add(time.Second))
	require.NoError(t, err)
	require.True(t, stale)
}

// TestPublishReplacesExistingIndex verifies the index is replaced in place
// across publishes.
func TestPublishReplacesExistingIndex(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{output: []byte("first index")}
	repo := testRepository(t, runner)

	source, sum := writeSource(t, []byte("artifact bytes"))

	require.NoError(t, repo.Publish(context.Background(), "widget-1.2.3-amd64.deb", source, sum, time.Now()))

	runner.output = []byte("second index")
	require.NoError(t, repo.Publish(context.Background(), "widget-1.2.3-amd64.deb", source, sum, time.Now()))

	publishedIndex, err := os.ReadFile(filepath.Join(repo.Dir(), IndexFilename))
	require.NoError(t, err)
	require.Equal(t, []byte("second index"), publishedIndex)
}
