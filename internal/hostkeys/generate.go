package hostkeys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// rsaKeyBits is the modulus size of generated RSA host keys.
const rsaKeyBits = 3072

// GenerateKeyPair generates a key pair for alg and returns the public key in
// authorized_keys format and the private key as a PKCS#8 PEM block.
// DSA keys cannot be generated.
func GenerateKeyPair(alg Algorithm) (publicKey, privateKeyPEM []byte, err error) {
	var (
		pub  crypto.PublicKey
		priv crypto.PrivateKey
	)

	switch alg {
	case RSA:
		k, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, nil, fmt.Errorf("generate rsa key: %w", err)
		}
		pub, priv = &k.PublicKey, k
	case ECDSA256, ECDSA384, ECDSA521:
		k, err := ecdsa.GenerateKey(curveFor(alg), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("generate ecdsa key: %w", err)
		}
		pub, priv = &k.PublicKey, k
	case Ed25519:
		p, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		pub, priv = p, k
	default:
		return nil, nil, fmt.Errorf("generate %s key: %w", alg, ErrUnsupported)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}

	privateKeyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privBytes,
	})

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("create ssh public key: %w", err)
	}
	publicKey = ssh.MarshalAuthorizedKey(sshPub)

	return publicKey, privateKeyPEM, nil
}

func curveFor(alg Algorithm) elliptic.Curve {
	switch alg {
	case ECDSA384:
		return elliptic.P384()
	case ECDSA521:
		return elliptic.P521()
	default:
		return elliptic.P256()
	}
}

// ParsePrivateKey parses a PEM-encoded private key into an ssh.Signer.
func ParsePrivateKey(privateKeyPEM []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

// EnsureKeyPair generates and saves a key pair for alg unless the store
// already has one. It reports whether a new pair was written.
func EnsureKeyPair(store interface {
	KeyWriter
	Exists(Algorithm) bool
}, alg Algorithm) (bool, error) {
	if store.Exists(alg) {
		return false, nil
	}
	pub, priv, err := GenerateKeyPair(alg)
	if err != nil {
		return false, err
	}
	if err := store.SaveKeyPair(alg, priv, pub); err != nil {
		return false, err
	}
	return true, nil
}
