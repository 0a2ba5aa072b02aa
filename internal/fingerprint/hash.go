package fingerprint

import (
	"crypto"
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// HashKind is a digest algorithm applied to the encoded host key.
type HashKind int

const (
	MD5 HashKind = iota
	SHA1
	SHA256
)

var hashKinds = [...]struct {
	name    string
	openssh string
	hash    crypto.Hash
}{
	MD5:    {"MD5", "MD5", crypto.MD5},
	SHA1:   {"SHA-1", "SHA1", crypto.SHA1},
	SHA256: {"SHA-256", "SHA256", crypto.SHA256},
}

// HashKinds returns every hash kind in display order.
func HashKinds() []HashKind {
	return []HashKind{MD5, SHA1, SHA256}
}

func (k HashKind) valid() bool {
	return k >= 0 && int(k) < len(hashKinds)
}

func (k HashKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("HashKind(%d)", int(k))
	}
	return hashKinds[k].name
}

// ParseHashKind accepts "MD5", "SHA-1", "SHA1", "SHA-256" and "SHA256" in any
// case.
func ParseHashKind(s string) (HashKind, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for i, h := range hashKinds {
		if norm == strings.ReplaceAll(h.name, "-", "") {
			return HashKind(i), nil
		}
	}
	return 0, fmt.Errorf("parse hash kind %q: unknown hash", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k HashKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("marshal hash kind: unknown hash %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *HashKind) UnmarshalText(text []byte) error {
	parsed, err := ParseHashKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Result is one digest of an encoded key in both display forms.
type Result struct {
	Hex    string
	Base64 string
	Digest []byte
}

// OpenSSH returns the fingerprint as printed by ssh-keygen -l: base64 for
// SHA-1 and SHA-256, lowercase colon hex for MD5.
func (r Result) OpenSSH(kind HashKind) string {
	if !kind.valid() {
		return ""
	}
	if kind == MD5 {
		return "MD5:" + strings.ToLower(strings.ReplaceAll(r.Hex, "\n", ""))
	}
	return hashKinds[kind].openssh + ":" + r.Base64
}

// lineBreakEvery is the number of bytes printed per hex line.
const lineBreakEvery = 10

// Beautify formats digest as uppercase colon-separated hex with a line break
// after every tenth separator.
func Beautify(digest []byte) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(digest)*3 + len(digest)/lineBreakEvery)
	for i, c := range digest {
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
		if i == len(digest)-1 {
			break
		}
		b.WriteByte(':')
		if (i+1)%lineBreakEvery == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Compute hashes encoded with kind and formats the digest.
func Compute(encoded []byte, kind HashKind) (Result, error) {
	if !kind.valid() {
		return Result{}, fmt.Errorf("compute fingerprint: unknown hash %d", int(kind))
	}
	h := hashKinds[kind].hash
	if !h.Available() {
		return Result{}, fmt.Errorf("compute %s fingerprint: hash not available", kind)
	}
	hh := h.New()
	hh.Write(encoded)
	digest := hh.Sum(nil)
	return Result{
		Hex:    Beautify(digest),
		Base64: base64.RawStdEncoding.EncodeToString(digest),
		Digest: digest,
	}, nil
}
