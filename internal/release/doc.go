// Package release resolves the newest upstream release artifact.
//
// The latest-release document is fetched through the sandbox, parsed once at
// the boundary into typed Release/Asset values, and queried with ordinary
// predicates: the artifact is the first asset matching the configured
// prefix/suffix pattern, its signature is the asset named exactly
// "<artifact>.asc". Asset names are untrusted; SanitizeName derives the only
// form that may touch the filesystem.
package release
