// Package config defines the sync settings for one mirrored upstream project
// and provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the upstream project coordinates, the local
// repository layout, the pinned keyring path and the sandbox profiles used
// for external tool invocations.
package config
