package hostkeys

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Algorithm identifies a host key algorithm in the catalog.
type Algorithm int

const (
	RSA Algorithm = iota
	DSA
	ECDSA256
	ECDSA384
	ECDSA521
	Ed25519
)

// keyAlgoDSA is the SSH key type of DSA keys.
const keyAlgoDSA = "ssh-dss"

// DefaultAlgorithm is used when nothing else is configured.
const DefaultAlgorithm = Ed25519

type entry struct {
	name        string
	keyType     string
	privateFile string
	read        func(io.Reader) (ssh.PublicKey, error)
	encode      func(ssh.PublicKey) []byte
}

var catalog = [...]entry{
	RSA:      {"rsa", ssh.KeyAlgoRSA, "rsa.key", readerFor(ssh.KeyAlgoRSA), wireEncode},
	DSA:      {"dsa", keyAlgoDSA, "dsa.key", readerFor(keyAlgoDSA), wireEncode},
	ECDSA256: {"ecdsa", ssh.KeyAlgoECDSA256, "ecdsa.key", readerFor(ssh.KeyAlgoECDSA256), wireEncode},
	ECDSA384: {"ecdsa-384", ssh.KeyAlgoECDSA384, "ecdsa.key.384", readerFor(ssh.KeyAlgoECDSA384), wireEncode},
	ECDSA521: {"ecdsa-521", ssh.KeyAlgoECDSA521, "ecdsa.key.521", readerFor(ssh.KeyAlgoECDSA521), wireEncode},
	Ed25519:  {"ed25519", ssh.KeyAlgoED25519, "ed25519.key", readerFor(ssh.KeyAlgoED25519), wireEncode},
}

// All returns every algorithm in catalog order.
func All() []Algorithm {
	algs := make([]Algorithm, len(catalog))
	for i := range catalog {
		algs[i] = Algorithm(i)
	}
	return algs
}

// Valid reports whether a is part of the catalog.
func (a Algorithm) Valid() bool {
	return a >= 0 && int(a) < len(catalog)
}

func (a Algorithm) entry() entry {
	if !a.Valid() {
		panic(fmt.Sprintf("hostkeys: unknown algorithm %d", int(a)))
	}
	return catalog[a]
}

// String returns the short name, e.g. "ed25519".
func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return catalog[a].name
}

// KeyType returns the SSH key type, e.g. "ssh-ed25519".
func (a Algorithm) KeyType() string { return a.entry().keyType }

// PrivateKeyFile is the file name of the private key.
func (a Algorithm) PrivateKeyFile() string { return a.entry().privateFile }

// PublicKeyFile is the file name of the public key.
func (a Algorithm) PublicKeyFile() string { return a.entry().privateFile + ".pub" }

// ReadPublicKey parses a public key of this algorithm from r.
func (a Algorithm) ReadPublicKey(r io.Reader) (ssh.PublicKey, error) {
	return a.entry().read(r)
}

// Encode returns the canonical SSH wire encoding of key.
func (a Algorithm) Encode(key ssh.PublicKey) []byte {
	return a.entry().encode(key)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("marshal algorithm: unknown algorithm %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	alg, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = alg
	return nil
}

// ParseAlgorithm looks up an algorithm by short name or SSH key type.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, e := range catalog {
		if name == e.name || name == e.keyType {
			return Algorithm(i), nil
		}
	}
	return 0, fmt.Errorf("parse algorithm %q: %w", name, ErrUnsupported)
}

func wireEncode(key ssh.PublicKey) []byte {
	return key.Marshal()
}
