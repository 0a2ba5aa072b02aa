package hostkeys

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

var (
	// ErrKeyNotFound is returned when a store has no key for an algorithm.
	ErrKeyNotFound = errors.New("host key not found")
	// ErrUnsupported is returned for algorithms or operations outside the catalog.
	ErrUnsupported = errors.New("unsupported host key algorithm")
	// ErrAlgorithmMismatch is returned when a key does not belong to the
	// algorithm it was read for.
	ErrAlgorithmMismatch = errors.New("host key algorithm mismatch")
)

// maxPublicKeySize bounds how much of a public key stream is read.
const maxPublicKeySize = 64 << 10

func readerFor(keyType string) func(io.Reader) (ssh.PublicKey, error) {
	return func(r io.Reader) (ssh.PublicKey, error) {
		data, err := io.ReadAll(io.LimitReader(r, maxPublicKeySize))
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		key, err := ParsePublicKey(data)
		if err != nil {
			return nil, err
		}
		if key.Type() != keyType {
			return nil, fmt.Errorf("read public key: got %s, want %s: %w", key.Type(), keyType, ErrAlgorithmMismatch)
		}
		return key, nil
	}
}

// ParsePublicKey parses a public key in authorized_keys, PEM (PKIX) or SSH
// wire form. Empty input is reported as ErrKeyNotFound.
func ParsePublicKey(data []byte) (ssh.PublicKey, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("parse public key: empty key data: %w", ErrKeyNotFound)
	}

	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		block, _ := pem.Decode(trimmed)
		if block == nil {
			return nil, fmt.Errorf("parse public key: invalid PEM data")
		}
		if block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("parse public key: unexpected PEM block %q", block.Type)
		}
		raw, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key, err := ssh.NewPublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return key, nil
	}

	if key, _, _, _, err := ssh.ParseAuthorizedKey(trimmed); err == nil {
		return key, nil
	}

	// Raw wire bytes must not be trimmed: whitespace bytes are valid there.
	key, err := ssh.ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}
