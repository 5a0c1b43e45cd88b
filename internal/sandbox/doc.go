// Package sandbox executes external tools under per-tool restriction
// profiles as an unprivileged principal.
//
// The Runner interface is the capability boundary: callers name the tool and
// a stdout size ceiling; the ExecRunner prepends the configured isolation
// wrapper and the tool's profile arguments. A tool without a profile is
// refused. Captured output beyond the ceiling is discarded and the run is
// failed, bounding memory against a misbehaving upstream.
package sandbox
