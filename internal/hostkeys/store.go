package hostkeys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

// KeyStore provides readable streams for each algorithm's key material.
// Implementations return an error wrapping ErrKeyNotFound when a key is
// missing.
type KeyStore interface {
	OpenPublicKey(alg Algorithm) (io.ReadCloser, error)
	OpenPrivateKey(alg Algorithm) (io.ReadCloser, error)
}

// KeyWriter persists a generated or imported key pair.
type KeyWriter interface {
	SaveKeyPair(alg Algorithm, privateKeyPEM, publicKey []byte) error
}

// DirStore keeps host keys as files in a single directory.
type DirStore struct {
	Dir string
}

// NewDirStore returns a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{Dir: dir}
}

func (s *DirStore) open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", name, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// OpenPublicKey opens the public key file of alg.
func (s *DirStore) OpenPublicKey(alg Algorithm) (io.ReadCloser, error) {
	return s.open(alg.PublicKeyFile())
}

// OpenPrivateKey opens the private key file of alg.
func (s *DirStore) OpenPrivateKey(alg Algorithm) (io.ReadCloser, error) {
	return s.open(alg.PrivateKeyFile())
}

// SaveKeyPair writes the private key with mode 0600 and the public key with
// mode 0644. The directory is created with mode 0700 if needed.
func (s *DirStore) SaveKeyPair(alg Algorithm, privateKeyPEM, publicKey []byte) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	privPath := filepath.Join(s.Dir, alg.PrivateKeyFile())
	if err := os.WriteFile(privPath, privateKeyPEM, 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	pubPath := filepath.Join(s.Dir, alg.PublicKeyFile())
	if err := os.WriteFile(pubPath, publicKey, 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	log.Printf("[hostkeys] %s key pair saved to %s", alg, s.Dir)
	return nil
}

// Exists reports whether both key files of alg are present.
func (s *DirStore) Exists(alg Algorithm) bool {
	if _, err := os.Stat(filepath.Join(s.Dir, alg.PrivateKeyFile())); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(s.Dir, alg.PublicKeyFile())); err != nil {
		return false
	}
	return true
}

// ReadKeyPair loads both halves of alg's key pair from store.
func ReadKeyPair(store KeyStore, alg Algorithm) (privateKeyPEM, publicKey []byte, err error) {
	priv, err := readAll(store.OpenPrivateKey, alg)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s private key: %w", alg, err)
	}
	pub, err := readAll(store.OpenPublicKey, alg)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s public key: %w", alg, err)
	}
	return priv, pub, nil
}

func readAll(open func(Algorithm) (io.ReadCloser, error), alg Algorithm) ([]byte, error) {
	rc, err := open(alg)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
