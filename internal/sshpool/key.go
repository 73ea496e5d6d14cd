// SPDX-License-Identifier: MPL-2.0

package sshpool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/xec-sh/xec/internal/target"
)

// destKey computes the destination key: (host, port, user,
// auth-fingerprint). Distinct credentials against the same (host, port,
// user) never share a session, since a session is authenticated once at
// dial time.
func destKey(spec target.SSHSpec) string {
	return fmt.Sprintf("%s:%d@%s#%s", spec.Host, spec.Port, spec.Username, authFingerprint(spec))
}

// authFingerprint hashes the credential material that determines *how* the
// session authenticates, so two specs with the same (host, port, user) but
// different keys/passwords are never treated as interchangeable.
func authFingerprint(spec target.SSHSpec) string {
	h := sha256.New()
	h.Write(spec.PrivateKey)
	h.Write([]byte(spec.PrivateKeyPath))
	h.Write([]byte(spec.Passphrase))
	h.Write([]byte(spec.Password))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
