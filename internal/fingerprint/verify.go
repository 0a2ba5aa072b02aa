package fingerprint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pftpd/pftpd-core/internal/hostkeys"
)

// MismatchError is returned when a host key does not have the expected
// fingerprint. This may indicate a replaced key or a spoofed server.
type MismatchError struct {
	Algorithm hostkeys.Algorithm
	Expected  string
	Actual    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s host key fingerprint mismatch: expected %s, got %s", e.Algorithm, e.Expected, e.Actual)
}

// ParseOpenSSH splits a fingerprint in ssh-keygen form ("SHA256:...",
// "SHA1:...", "MD5:aa:bb:...") into its hash kind and value.
func ParseOpenSSH(fp string) (HashKind, string, error) {
	prefix, value, ok := strings.Cut(strings.TrimSpace(fp), ":")
	if !ok || value == "" {
		return 0, "", fmt.Errorf("parse fingerprint %q: missing hash prefix", fp)
	}
	for i, h := range hashKinds {
		if strings.EqualFold(prefix, h.openssh) {
			return HashKind(i), value, nil
		}
	}
	return 0, "", fmt.Errorf("parse fingerprint %q: unknown hash %q", fp, prefix)
}

// Verify checks that the key of alg has the expected fingerprint, given in
// ssh-keygen form. A key missing from the snapshot yields its
// *KeyUnavailableError; a different key yields a *MismatchError.
func (s *Snapshot) Verify(alg hostkeys.Algorithm, expected string) error {
	if expected == "" {
		return errors.New("verify fingerprint: expected fingerprint is empty")
	}
	kind, value, err := ParseOpenSSH(expected)
	if err != nil {
		return fmt.Errorf("verify fingerprint: %w", err)
	}

	res, ok := s.Fingerprint(alg, kind)
	if !ok {
		if reason, absent := s.Absent[alg]; absent {
			return reason
		}
		return fmt.Errorf("verify fingerprint: %s not in snapshot: %w", alg, hostkeys.ErrKeyNotFound)
	}

	actual := res.OpenSSH(kind)
	if !sameValue(kind, value, res) {
		return &MismatchError{Algorithm: alg, Expected: expected, Actual: actual}
	}
	return nil
}

func sameValue(kind HashKind, value string, res Result) bool {
	if kind == MD5 {
		norm := func(s string) string {
			return strings.ToLower(strings.NewReplacer(":", "", "\n", "").Replace(s))
		}
		return norm(value) == norm(res.Hex)
	}
	// some tools keep base64 padding
	return strings.TrimRight(value, "=") == res.Base64
}
