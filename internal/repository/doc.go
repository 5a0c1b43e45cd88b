// Package repository maintains the local package repository: it decides
// whether the published artifact is stale relative to upstream, installs
// verified artifacts without ever exposing partial files, and keeps the
// package index in sync with the directory contents.
package repository
