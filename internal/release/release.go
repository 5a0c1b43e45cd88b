package release

import (
	"strings"
	"time"
)

// Release is the latest-release document returned by the metadata API.
// Only the fields this pipeline consumes are modeled; the schema is an
// external contract and the rest of the document is ignored.
type Release struct {
	// TagName is the release tag, kept for logging.
	TagName string `json:"tag_name"`
	// Assets lists the downloadable files in the API's own order.
	Assets []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	// Name is the filename as published upstream. Untrusted.
	Name string `json:"name"`
	// URL is the download endpoint for the asset's raw bytes.
	URL string `json:"url"`
	// UpdatedAt is the upstream-declared last modification instant.
	UpdatedAt time.Time `json:"updated_at"`
}

// SignatureSuffix is appended to an artifact name to find its detached signature.
const SignatureSuffix = ".asc"

// SanitizeName strips every character outside the filename allow-list
// (alphanumerics, '.', '_' and '-'). Filtering, not rejection: an adversarial
// name degrades to a shorter safe string instead of propagating path
// separators or shell metacharacters into the repository.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, name)
}
