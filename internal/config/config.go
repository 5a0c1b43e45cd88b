package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sandbox describes how external tools are isolated when the pipeline runs them.
type Sandbox struct {
	// Wrapper is the argv prefix that drops privileges and applies isolation,
	// for example: [sudo, -u, debsync-sandbox, --, firejail, --quiet].
	// An empty wrapper executes tools directly, which is only sensible in tests.
	Wrapper []string `yaml:"wrapper"`
	// Profiles maps an external tool name to profile-specific wrapper arguments.
	// A tool without an entry here must not be executed.
	Profiles map[string][]string `yaml:"profiles"`
}

// Config holds the settings for one mirrored upstream project.
type Config struct {
	// Project is the upstream project in "owner/name" form.
	Project string `yaml:"project"`
	// PackagePrefix is the asset name prefix identifying the target artifact.
	// Defaults to the project name followed by a dash.
	PackagePrefix string `yaml:"package_prefix"`
	// Architecture selects the platform-specific artifact (e.g. amd64).
	Architecture string `yaml:"architecture"`
	// AssetExtension is the artifact file extension including the dot.
	AssetExtension string `yaml:"asset_extension"`
	// APIBaseURL is the root of the release metadata API.
	APIBaseURL string `yaml:"api_base_url"`
	// RepositoryRoot is the local package repository directory.
	RepositoryRoot string `yaml:"repository_root"`
	// KeyringPath is the pinned public keyring artifacts are verified against.
	KeyringPath string `yaml:"keyring"`
	// Timeout bounds each network operation.
	Timeout time.Duration `yaml:"timeout"`
	// Sandbox configures isolation of external tool invocations.
	Sandbox Sandbox `yaml:"sandbox"`
}

const (
	// DefaultConfigFilename is the default filename for sync settings.
	DefaultConfigFilename = "debsync.yaml"

	// DefaultAPIBaseURL is the release metadata API used when none is configured.
	DefaultAPIBaseURL = "https://api.github.com"

	// DefaultArchitecture is the architecture mirrored when none is configured.
	DefaultArchitecture = "amd64"

	// DefaultAssetExtension is the artifact extension used when none is configured.
	DefaultAssetExtension = ".deb"

	// DefaultTimeout is the default duration for a single network operation.
	DefaultTimeout = 5 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errProjectRequired is returned when the upstream project is missing or malformed.
	errProjectRequired = errors.New("project must be provided as owner/name")
	// errRepositoryRootRequired is returned when the repository directory is missing.
	errRepositoryRootRequired = errors.New("repository root must be provided")
	// errKeyringRequired is returned when the keyring path is missing.
	errKeyringRequired = errors.New("keyring path must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	owner, name, ok := strings.Cut(cfg.Project, "/")
	if !ok || owner == "" || name == "" {
		return fmt.Errorf("%w: %q", errProjectRequired, cfg.Project)
	}

	if cfg.RepositoryRoot == "" {
		return errRepositoryRootRequired
	}

	if cfg.KeyringPath == "" {
		return errKeyringRequired
	}

	if cfg.Architecture == "" {
		cfg.Architecture = DefaultArchitecture
	}

	if cfg.AssetExtension == "" {
		cfg.AssetExtension = DefaultAssetExtension
	}

	if cfg.PackagePrefix == "" {
		cfg.PackagePrefix = name + "-"
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}

	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}

// AssetSuffix returns the asset name suffix selecting the configured
// architecture and extension, e.g. "-amd64.deb".
func (c *Config) AssetSuffix() string {
	return "-" + c.Architecture + c.AssetExtension
}

// Default returns a documented starting configuration for `debsync init`.
func Default() *Config {
	return &Config{
		Project:        "example/project",
		Architecture:   DefaultArchitecture,
		AssetExtension: DefaultAssetExtension,
		APIBaseURL:     DefaultAPIBaseURL,
		RepositoryRoot: "/srv/repo",
		KeyringPath:    "/etc/debsync/trusted.gpg",
		Timeout:        DefaultTimeout,
		Sandbox: Sandbox{
			Wrapper: []string{"sudo", "-u", "debsync-sandbox", "--", "firejail", "--quiet"},
			Profiles: map[string][]string{
				"curl":           {"--profile=/etc/firejail/debsync-curl.profile"},
				"apt-ftparchive": {"--profile=/etc/firejail/debsync-aptftparchive.profile"},
			},
		},
	}
}
