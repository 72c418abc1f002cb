// utils/keys.go - private key material helpers
package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// KeyFingerprint returns the SHA256 fingerprint of the public half of a
// private key, in the form ssh-keygen -l prints. Passphrase-protected
// OpenSSH keys still yield a fingerprint because the public key is stored
// in the clear.
func KeyFingerprint(material []byte) (string, error) {
	signer, err := ssh.ParsePrivateKey(material)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && missing.PublicKey != nil {
			return ssh.FingerprintSHA256(missing.PublicKey), nil
		}
		return "", fmt.Errorf("failed to parse SSH private key: %w", err)
	}
	return ssh.FingerprintSHA256(signer.PublicKey()), nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
