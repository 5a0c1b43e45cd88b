package verify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ErrEmptyKeyring is returned when the pinned keyring contains no keys.
var ErrEmptyKeyring = errors.New("keyring contains no keys")

// Verifier checks detached signatures against a pinned public keyring.
// Trust is keyring membership: any key in the file is an accepted signer,
// no web-of-trust computation is performed. The keyring is fixed at
// deployment and never modified by the pipeline.
type Verifier struct {
	// keyringPath is the pinned public keyring file.
	keyringPath string
}

// NewVerifier creates a verifier for the provided keyring file.
func NewVerifier(keyringPath string) *Verifier {
	return &Verifier{
		keyringPath: filepath.Clean(keyringPath),
	}
}

// VerifyDetached checks that signaturePath is a valid detached signature over
// artifactPath by a key in the keyring. Both armored and binary signatures
// are accepted. On success the signer's primary key fingerprint is returned
// for logging; any failure means the artifact must be discarded.
func (v *Verifier) VerifyDetached(artifactPath, signaturePath string) (string, error) {
	keyring, err := v.loadKeyring()
	if err != nil {
		return "", fmt.Errorf("load keyring: %w", err)
	}

	artifact, err := os.Open(filepath.Clean(artifactPath))
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer artifact.Close()

	signature, err := os.Open(filepath.Clean(signaturePath))
	if err != nil {
		return "", fmt.Errorf("open signature: %w", err)
	}
	defer signature.Close()

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, artifact, signature, nil)
	if err != nil {
		// Retry as a binary signature.
		if _, seekErr := artifact.Seek(0, io.SeekStart); seekErr != nil {
			return "", fmt.Errorf("rewind artifact: %w", seekErr)
		}

		if _, seekErr := signature.Seek(0, io.SeekStart); seekErr != nil {
			return "", fmt.Errorf("rewind signature: %w", seekErr)
		}

		signer, err = openpgp.CheckDetachedSignature(keyring, artifact, signature, nil)
	}

	if err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	return fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint), nil
}

// loadKeyring reads the pinned keyring, accepting armored or binary form.
func (v *Verifier) loadKeyring() (openpgp.EntityList, error) {
	file, err := os.Open(v.keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer file.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(file)
	if err != nil {
		// Retry as a binary keyring.
		if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", seekErr)
		}

		keyring, err = openpgp.ReadKeyRing(file)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, ErrEmptyKeyring
	}

	return keyring, nil
}
