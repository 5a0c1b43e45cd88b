// Package verify checks detached OpenPGP signatures against a pinned
// public keyring. A signature is valid when any key in the keyring made
// it; there is no key discovery and no network access.
package verify
