// Package sync orchestrates one synchronization pass: resolve the newest
// upstream release, stop early when the published copy is current, download
// the artifact and its detached signature into a private working area,
// verify the signature against the pinned keyring, and publish into the
// local repository. Any failure aborts the pass without touching the
// repository; re-invocation is the retry mechanism.
package sync
