package hostkeys

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"

	"gorm.io/gorm"

	"github.com/pftpd/pftpd-core/internal/crypto"
	"github.com/pftpd/pftpd-core/internal/database"
)

// DBStore keeps host keys in the host_keys table. Private keys are stored as
// fernet tokens and decrypted on open.
type DBStore struct{}

// NewDBStore returns a store backed by database.DB.
func NewDBStore() *DBStore {
	return &DBStore{}
}

func (s *DBStore) load(alg Algorithm) (*database.HostKey, error) {
	k, err := database.GetHostKey(alg.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load %s key: %w", alg, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("load %s key: %w", alg, err)
	}
	return k, nil
}

// OpenPublicKey returns the stored public key of alg.
func (s *DBStore) OpenPublicKey(alg Algorithm) (io.ReadCloser, error) {
	k, err := s.load(alg)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte(k.PublicKey))), nil
}

// OpenPrivateKey decrypts and returns the stored private key of alg.
func (s *DBStore) OpenPrivateKey(alg Algorithm) (io.ReadCloser, error) {
	k, err := s.load(alg)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Open(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s private key: %w", alg, err)
	}
	return io.NopCloser(bytes.NewReader(plain)), nil
}

// SaveKeyPair seals the private key and stores both halves, replacing any
// previous pair of alg.
func (s *DBStore) SaveKeyPair(alg Algorithm, privateKeyPEM, publicKey []byte) error {
	sealed, err := crypto.Seal(privateKeyPEM)
	if err != nil {
		return fmt.Errorf("seal %s private key: %w", alg, err)
	}
	if err := database.SaveHostKey(&database.HostKey{
		Algorithm:  alg.String(),
		PublicKey:  string(publicKey),
		PrivateKey: sealed,
	}); err != nil {
		return fmt.Errorf("save %s key pair: %w", alg, err)
	}
	log.Printf("[hostkeys] %s key pair saved to database", alg)
	return nil
}

// Reseal rotates the seal key, re-encrypts every stored private key with it
// and retires the old keys. If resealing fails the old keys stay in the ring,
// so no stored key becomes unreadable.
func (s *DBStore) Reseal() (int, error) {
	if err := crypto.RotateKey(); err != nil {
		return 0, fmt.Errorf("rotate seal key: %w", err)
	}
	n, err := database.ResealHostKeys(func(token string) (string, error) {
		plain, err := crypto.Open(token)
		if err != nil {
			return "", err
		}
		return crypto.Seal(plain)
	})
	if err != nil {
		return 0, fmt.Errorf("reseal host keys: %w", err)
	}
	if _, err := crypto.RetireOldKeys(); err != nil {
		return n, fmt.Errorf("retire seal keys: %w", err)
	}
	log.Printf("[hostkeys] resealed %d private keys", n)
	return n, nil
}

// Exists reports whether a key pair for alg is stored.
func (s *DBStore) Exists(alg Algorithm) bool {
	_, err := database.GetHostKey(alg.String())
	return err == nil
}

// Delete removes the key pair of alg.
func (s *DBStore) Delete(alg Algorithm) error {
	if err := database.DeleteHostKey(alg.String()); err != nil {
		return fmt.Errorf("delete %s key pair: %w", alg, err)
	}
	return nil
}

// Import copies every key pair present in src into dst and returns the
// algorithms that were copied. Missing pairs are skipped.
func Import(dst KeyWriter, src KeyStore) ([]Algorithm, error) {
	var copied []Algorithm
	for _, alg := range All() {
		priv, pub, err := ReadKeyPair(src, alg)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return copied, err
		}
		if _, err := alg.ReadPublicKey(bytes.NewReader(pub)); err != nil {
			return copied, fmt.Errorf("import %s: %w", alg, err)
		}
		if err := dst.SaveKeyPair(alg, priv, pub); err != nil {
			return copied, err
		}
		copied = append(copied, alg)
	}
	return copied, nil
}
