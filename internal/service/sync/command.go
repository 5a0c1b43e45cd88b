package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/saittam/debsync/internal/config"
	"github.com/saittam/debsync/internal/logger"
	"github.com/saittam/debsync/internal/release"
	"github.com/saittam/debsync/internal/repository"
	"github.com/saittam/debsync/internal/sandbox"
	"github.com/saittam/debsync/internal/verify"
	"github.com/saittam/debsync/internal/version"
)

// processName is the executable name scanned for when refusing to run twice.
const processName = "debsync"

var errAlreadyRunning = errors.New("another debsync process is already running")

// Options are inputs accepted by the synchronization entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// runner holds the state and collaborators for a single synchronization run.
// It is intentionally unexported—call Run(ctx, *Options) from callers.
type runner struct {
	cfg      *config.Config
	resolver *release.Resolver
	verifier *verify.Verifier
	repo     *repository.Repository
	sandbox  sandbox.Runner
	workdir  string // Private working area, removed on every exit path.
	timeout  time.Duration
}

// Run executes one synchronization pass and is the public entry point for
// the CLI. One pass either publishes the newest verified upstream artifact
// or does nothing; a failed pass changes nothing and the next invocation is
// the retry.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, processName)

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Synchronization failed", "error", err)
		return err
	}

	return nil
}

// newRunner loads settings, refuses to run next to another debsync process,
// and prepares the private working area.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	r := &runner{}

	running, err := isAlreadyRunning()
	if err != nil {
		return r, fmt.Errorf("scan processes: %w", err)
	}

	if running {
		return r, errAlreadyRunning
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return r, err
	}

	execRunner := sandbox.NewExecRunner(&cfg.Sandbox)

	r.cfg = cfg
	r.sandbox = execRunner
	r.resolver = release.NewResolver(execRunner, cfg)
	r.verifier = verify.NewVerifier(cfg.KeyringPath)
	r.repo = repository.New(execRunner, cfg)
	r.timeout = cfg.Timeout

	r.workdir, err = os.MkdirTemp("", processName+"-")
	if err != nil {
		return r, fmt.Errorf("create working area: %w", err)
	}

	logger.InfoKV(ctx, "Prepared working area", "path", r.workdir)

	return r, nil
}

// run sequences one pass: resolve, gate, download, verify, publish.
func (r *runner) run(ctx context.Context) error {
	logger.InfoKV(ctx, "Resolving latest release", "project", r.cfg.Project)

	res, err := r.resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve release: %w", err)
	}

	logger.InfoKV(ctx, "Resolved artifact",
		"name", res.SanitizedName,
		"updated_at", res.UpdatedAt)

	stale, err := r.repo.IsStale(res.SanitizedName, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("check freshness: %w", err)
	}

	if !stale {
		logger.InfoKV(ctx, "Published artifact is already current", "name", res.SanitizedName)
		return nil
	}

	artifactPath, checksum, err := r.downloadArtifact(ctx, res)
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}

	signaturePath, err := r.downloadSignature(ctx, res)
	if err != nil {
		return fmt.Errorf("download signature: %w", err)
	}

	fingerprint, err := r.verifier.VerifyDetached(artifactPath, signaturePath)
	if err != nil {
		return fmt.Errorf("verify artifact: %w", err)
	}

	logger.InfoKV(ctx, "Signature verified", "signer", fingerprint)

	if err = r.repo.Publish(ctx, res.SanitizedName, artifactPath, checksum, res.UpdatedAt); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}

	logger.InfoKV(ctx, "Published artifact",
		"name", res.SanitizedName,
		"path", r.repo.ArtifactPath(res.SanitizedName))

	return nil
}

// resolve fetches the latest release metadata under the network timeout.
func (r *runner) resolve(ctx context.Context) (*release.Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.resolver.Resolve(ctx, r.workdir)
}

// downloadArtifact fetches the artifact bytes into the working area and
// returns the file path together with the pinning checksum of the bytes.
func (r *runner) downloadArtifact(ctx context.Context, res *release.Resolution) (string, []byte, error) {
	logger.InfoKV(ctx, "Downloading artifact", "url", res.ArtifactURL)

	data, err := r.fetch(ctx, res.ArtifactURL, sandbox.MaxArtifactBytes)
	if err != nil {
		return "", nil, err
	}

	checksum, err := repository.Checksum(data)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(r.workdir, res.SanitizedName)
	if err = os.WriteFile(path, data, config.DefaultFilePermissions); err != nil {
		return "", nil, fmt.Errorf("write artifact: %w", err)
	}

	return path, checksum, nil
}

// downloadSignature fetches the detached signature into the working area.
func (r *runner) downloadSignature(ctx context.Context, res *release.Resolution) (string, error) {
	logger.InfoKV(ctx, "Downloading signature", "url", res.SignatureURL)

	data, err := r.fetch(ctx, res.SignatureURL, sandbox.MaxMetadataBytes)
	if err != nil {
		return "", err
	}

	path := filepath.Join(r.workdir, res.SanitizedName+release.SignatureSuffix)
	if err = os.WriteFile(path, data, config.DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("write signature: %w", err)
	}

	return path, nil
}

// fetch runs one sandboxed download under the network timeout.
func (r *runner) fetch(ctx context.Context, url string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.sandbox.Run(ctx, "", limit, "curl",
		"-fsSL",
		"-A", version.UserAgent(),
		"-H", "Accept: application/octet-stream",
		url)
}

// cleanup removes the working area.
func (r *runner) cleanup(ctx context.Context) {
	if r.workdir == "" {
		return
	}

	if err := os.RemoveAll(r.workdir); err != nil {
		logger.ErrorKV(ctx, "Unable to remove working area", "path", r.workdir, "error", err)
		return
	}

	logger.DebugKV(ctx, "Removed working area", "path", r.workdir)
}

// isAlreadyRunning scans the process table for another debsync instance.
// The guard is advisory: it reduces the chance of two runs mutating the
// same repository, it does not replace a lock.
func isAlreadyRunning() (bool, error) {
	processes, err := ps.Processes()
	if err != nil {
		return false, err
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		name := strings.ToLower(process.Executable())
		if strings.TrimSuffix(name, ".exe") == processName {
			return true, nil
		}
	}

	return false, nil
}
