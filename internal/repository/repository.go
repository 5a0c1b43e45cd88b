package repository

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Register the checksum function.
	_ "crypto/sha512"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/saittam/debsync/internal/config"
	"github.com/saittam/debsync/internal/sandbox"
)

const (
	// IndexFilename is the package index maintained in each architecture
	// directory.
	IndexFilename = "Packages"

	// MaxIndexBytes caps the generated package index size.
	MaxIndexBytes = 64 << 20

	// DirPermissions is used for repository directories, which apt clients
	// must be able to traverse.
	DirPermissions os.FileMode = 0o755

	// FilePermissions is used for published files, which apt clients must be
	// able to read.
	FilePermissions os.FileMode = 0o644

	// checksumFunction pins published bytes to the verified bytes.
	checksumFunction crypto.Hash = crypto.SHA512
)

var (
	errChecksumUnavailable = errors.New("checksum function is not available")
	errChecksumMismatch    = errors.New("artifact bytes do not match the verified checksum")
)

// Repository is the local package repository: the freshness gate over
// published artifacts and the publisher that installs a verified artifact
// and regenerates the package index.
type Repository struct {
	root   string
	arch   string
	runner sandbox.Runner
}

// New creates a repository over the configured root directory.
func New(runner sandbox.Runner, cfg *config.Config) *Repository {
	return &Repository{
		root:   cfg.RepositoryRoot,
		arch:   cfg.Architecture,
		runner: runner,
	}
}

// Dir returns the architecture directory artifacts are published into.
func (r *Repository) Dir() string {
	return filepath.Join(r.root, r.arch)
}

// ArtifactPath returns the publish destination for a sanitized artifact name.
func (r *Repository) ArtifactPath(sanitizedName string) string {
	return filepath.Join(r.Dir(), sanitizedName)
}

// IsStale reports whether the published copy of the artifact is older than
// the upstream update instant. A missing file is stale; equal timestamps are
// current. Publish pins the local mtime to the upstream instant, so a
// re-run over an unchanged upstream compares equal and does nothing.
func (r *Repository) IsStale(sanitizedName string, upstream time.Time) (bool, error) {
	info, err := os.Stat(r.ArtifactPath(sanitizedName))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}

		return false, fmt.Errorf("stat published artifact: %w", err)
	}

	return upstream.Unix() > info.ModTime().Unix(), nil
}

// Publish installs the verified artifact at sourcePath under its sanitized
// name, pins its mtime to the upstream update instant, and regenerates the
// package index. checksum must be the SHA-512 of the bytes that passed
// signature verification; the source is re-checked against it so that only
// those exact bytes can reach the repository. The artifact lands via a
// single rename within the destination directory, so readers never observe
// it absent or partial.
func (r *Repository) Publish(ctx context.Context, sanitizedName, sourcePath string, checksum []byte, updatedAt time.Time) error {
	data, err := os.ReadFile(filepath.Clean(sourcePath))
	if err != nil {
		return fmt.Errorf("read verified artifact: %w", err)
	}

	sum, err := Checksum(data)
	if err != nil {
		return err
	}

	if !bytes.Equal(sum, checksum) {
		return fmt.Errorf("%s: %w", sanitizedName, errChecksumMismatch)
	}

	if err = os.MkdirAll(r.Dir(), DirPermissions); err != nil {
		return fmt.Errorf("create repository directory: %w", err)
	}

	final := r.ArtifactPath(sanitizedName)
	staging := final + ".new"

	if err = os.WriteFile(staging, data, FilePermissions); err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}

	if err = os.Rename(staging, final); err != nil {
		_ = os.Remove(staging)

		return fmt.Errorf("install artifact: %w", err)
	}

	if err = os.Chtimes(final, updatedAt, updatedAt); err != nil {
		return fmt.Errorf("pin artifact mtime: %w", err)
	}

	return r.regenerateIndex(ctx)
}

// regenerateIndex rebuilds the package index over the architecture directory
// and replaces the published index with checksum validation.
func (r *Repository) regenerateIndex(ctx context.Context) error {
	dir := r.Dir()

	index, err := r.runner.Run(ctx, dir, MaxIndexBytes, "apt-ftparchive", "packages", ".")
	if err != nil {
		return fmt.Errorf("generate package index: %w", err)
	}

	indexPath := filepath.Join(dir, IndexFilename)

	if _, err = os.Stat(indexPath); err != nil && os.IsNotExist(err) {
		if err = os.WriteFile(indexPath, nil, FilePermissions); err != nil {
			return fmt.Errorf("create package index: %w", err)
		}
	}

	sum, err := Checksum(index)
	if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: indexPath,
		TargetMode: FilePermissions,
		Checksum:   sum,
		Hash:       checksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(index), options); err != nil {
		return fmt.Errorf("replace package index: %w", err)
	}

	oldPath := indexPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// Checksum returns the pinning checksum of data.
func Checksum(data []byte) ([]byte, error) {
	if !checksumFunction.Available() {
		return nil, errChecksumUnavailable
	}

	hash := checksumFunction.New()
	_, _ = hash.Write(data)

	return hash.Sum(nil), nil
}
