package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saittam/debsync/internal/config"
	"github.com/saittam/debsync/internal/sandbox"
	"github.com/saittam/debsync/internal/version"
)

// MetadataFilename is the working-area copy of the fetched release document.
const MetadataFilename = "release.json"

var (
	// ErrNoMatchingAsset is returned when no asset matches the name pattern.
	ErrNoMatchingAsset = errors.New("no release asset matches the artifact pattern")
	// ErrSignatureMissing is returned when the artifact has no detached signature asset.
	ErrSignatureMissing = errors.New("no signature asset for artifact")
	// ErrNoTimestamp is returned when the selected asset lacks an update time.
	ErrNoTimestamp = errors.New("release asset has no update timestamp")
)

// Resolution identifies the artifact to mirror and where to fetch it from.
type Resolution struct {
	// RawName is the artifact name exactly as published upstream.
	RawName string
	// SanitizedName is RawName filtered to the filename allow-list; it is the
	// only form ever used on disk.
	SanitizedName string
	// ArtifactURL is the download endpoint for the artifact bytes.
	ArtifactURL string
	// SignatureURL is the download endpoint for the detached signature.
	SignatureURL string
	// UpdatedAt is the upstream-declared update instant of the artifact.
	UpdatedAt time.Time
}

// Resolver fetches the latest-release document through the sandbox and
// selects the target artifact and its signature.
type Resolver struct {
	runner     sandbox.Runner
	apiBaseURL string
	project    string
	prefix     string
	suffix     string
}

// NewResolver creates a resolver for the configured upstream project.
func NewResolver(runner sandbox.Runner, cfg *config.Config) *Resolver {
	return &Resolver{
		runner:     runner,
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		project:    cfg.Project,
		prefix:     cfg.PackagePrefix,
		suffix:     cfg.AssetSuffix(),
	}
}

// Resolve fetches the latest release metadata and returns the artifact
// resolution. The raw document is kept in the working area for diagnosis.
func (r *Resolver) Resolve(ctx context.Context, workdir string) (*Resolution, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", r.apiBaseURL, r.project)

	data, err := r.runner.Run(ctx, "", sandbox.MaxMetadataBytes, "curl",
		"-fsSL",
		"-A", version.UserAgent(),
		"-H", "Accept: application/vnd.github+json",
		endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch release metadata: %w", err)
	}

	if workdir != "" {
		// Best-effort diagnostic copy.
		_ = os.WriteFile(filepath.Join(workdir, MetadataFilename), data, 0o600)
	}

	var rel Release
	if err := json.Unmarshal(data, &rel); err != nil {
		return nil, fmt.Errorf("decode release metadata: %w", err)
	}

	return Select(&rel, r.prefix, r.suffix)
}

// Select applies the artifact and signature predicates to a parsed release.
// The first asset matching prefix and suffix wins, keeping selection stable
// on the API's own asset ordering. A missing signature asset is fatal: an
// artifact that cannot be verified is never installed.
func Select(rel *Release, prefix, suffix string) (*Resolution, error) {
	var target *Asset

	for i := range rel.Assets {
		asset := &rel.Assets[i]
		if strings.HasPrefix(asset.Name, prefix) && strings.HasSuffix(asset.Name, suffix) {
			target = asset
			break
		}
	}

	if target == nil {
		return nil, fmt.Errorf("%w: prefix %q, suffix %q", ErrNoMatchingAsset, prefix, suffix)
	}

	if target.UpdatedAt.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoTimestamp, target.Name)
	}

	signatureName := target.Name + SignatureSuffix

	var signature *Asset

	for i := range rel.Assets {
		if rel.Assets[i].Name == signatureName {
			signature = &rel.Assets[i]
			break
		}
	}

	if signature == nil {
		return nil, fmt.Errorf("%w: %s", ErrSignatureMissing, signatureName)
	}

	return &Resolution{
		RawName:       target.Name,
		SanitizedName: SanitizeName(target.Name),
		ArtifactURL:   target.URL,
		SignatureURL:  signature.URL,
		UpdatedAt:     target.UpdatedAt,
	}, nil
}
