// Package report renders fingerprint snapshots for people and tools.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pftpd/pftpd-core/internal/fingerprint"
	"github.com/pftpd/pftpd-core/internal/hostkeys"
	"github.com/pftpd/pftpd-core/internal/logutil"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrNotGenerated is returned when there is no snapshot to render.
var ErrNotGenerated = errors.New("fingerprints have not been generated")

// Document is the machine-readable form of a snapshot.
type Document struct {
	Snapshot    string      `json:"snapshot" yaml:"snapshot"`
	GeneratedAt time.Time   `json:"generated_at" yaml:"generated_at"`
	Present     bool        `json:"present" yaml:"present"`
	Keys        []KeyDoc    `json:"keys" yaml:"keys"`
	Absent      []AbsentDoc `json:"absent,omitempty" yaml:"absent,omitempty"`
}

// KeyDoc lists the fingerprints of one present host key.
type KeyDoc struct {
	Algorithm    string           `json:"algorithm" yaml:"algorithm"`
	KeyType      string           `json:"key_type" yaml:"key_type"`
	Fingerprints []FingerprintDoc `json:"fingerprints" yaml:"fingerprints"`
}

// FingerprintDoc carries the hex form on a single line.
type FingerprintDoc struct {
	Hash    string `json:"hash" yaml:"hash"`
	Hex     string `json:"hex" yaml:"hex"`
	Base64  string `json:"base64" yaml:"base64"`
	OpenSSH string `json:"openssh" yaml:"openssh"`
}

// AbsentDoc names an algorithm without a usable key and the reason.
type AbsentDoc struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Reason    string `json:"reason" yaml:"reason"`
}

// NewDocument builds the document of snap.
func NewDocument(snap *fingerprint.Snapshot) *Document {
	doc := &Document{
		Snapshot:    snap.ID.String(),
		GeneratedAt: snap.GeneratedAt.UTC(),
		Present:     snap.Present(),
		Keys:        []KeyDoc{},
	}
	for _, alg := range snap.Algorithms() {
		kd := KeyDoc{Algorithm: alg.String(), KeyType: alg.KeyType()}
		for _, kind := range fingerprint.HashKinds() {
			res, ok := snap.Fingerprint(alg, kind)
			if !ok {
				continue
			}
			kd.Fingerprints = append(kd.Fingerprints, FingerprintDoc{
				Hash:    kind.String(),
				Hex:     logutil.SingleLine(res.Hex),
				Base64:  res.Base64,
				OpenSSH: res.OpenSSH(kind),
			})
		}
		doc.Keys = append(doc.Keys, kd)
	}
	for _, alg := range hostkeys.All() {
		if reason, ok := snap.Absent[alg]; ok {
			doc.Absent = append(doc.Absent, AbsentDoc{Algorithm: alg.String(), Reason: reason.Err.Error()})
		}
	}
	return doc
}

// Render writes snap to w in format.
func Render(w io.Writer, snap *fingerprint.Snapshot, format string) error {
	if snap == nil {
		return ErrNotGenerated
	}
	switch strings.ToLower(format) {
	case "", FormatText:
		return renderText(w, snap)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewDocument(snap))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewDocument(snap)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("render fingerprints: unknown format %q", format)
	}
}

// hexIndent lines up wrapped hex lines under the first one.
var hexIndent = strings.Repeat(" ", 13)

func renderText(w io.Writer, snap *fingerprint.Snapshot) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Host key fingerprints (generated %s)\n", snap.GeneratedAt.UTC().Format(time.RFC3339))
	if !snap.Present() {
		b.WriteString("\nNo host keys present.\n")
	}
	for _, alg := range snap.Algorithms() {
		fmt.Fprintf(&b, "\n%s (%s)\n", alg, alg.KeyType())
		for _, kind := range fingerprint.HashKinds() {
			res, ok := snap.Fingerprint(alg, kind)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %-9s  %s\n", kind, strings.ReplaceAll(res.Hex, "\n", "\n"+hexIndent))
			fmt.Fprintf(&b, "  %-9s  %s\n", "", res.Base64)
		}
	}
	var absent []string
	for _, alg := range hostkeys.All() {
		if _, ok := snap.Absent[alg]; ok {
			absent = append(absent, alg.String())
		}
	}
	if len(absent) > 0 {
		fmt.Fprintf(&b, "\nNo key: %s\n", strings.Join(absent, ", "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
