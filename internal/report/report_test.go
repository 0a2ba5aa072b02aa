package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/pftpd/pftpd-core/internal/fingerprint"
	"github.com/pftpd/pftpd-core/internal/hostkeys"
)

func testSnapshot(t *testing.T) *fingerprint.Snapshot {
	t.Helper()
	store := hostkeys.NewDirStore(t.TempDir())
	if _, err := hostkeys.EnsureKeyPair(store, hostkeys.Ed25519); err != nil {
		t.Fatalf("EnsureKeyPair: %v", err)
	}
	return fingerprint.NewRegistry().Generate(store)
}

func TestRender_Text(t *testing.T) {
	snap := testSnapshot(t)
	var buf bytes.Buffer
	if err := Render(&buf, snap, FormatText); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"ed25519 (ssh-ed25519)", "MD5", "SHA-1", "SHA-256", "No key: rsa, dsa"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}

	res, _ := snap.Fingerprint(hostkeys.Ed25519, fingerprint.SHA256)
	if !strings.Contains(out, res.Base64) {
		t.Error("text output missing SHA-256 base64")
	}
	// wrapped hex lines are indented under the first line
	lines := strings.Split(res.Hex, "\n")
	if !strings.Contains(out, "\n"+hexIndent+lines[1]) {
		t.Errorf("continuation line not indented:\n%s", out)
	}
}

func TestRender_TextNoKeys(t *testing.T) {
	snap := fingerprint.NewRegistry().Generate(hostkeys.NewDirStore(t.TempDir()))
	var buf bytes.Buffer
	if err := Render(&buf, snap, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "No host keys present.") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestRender_JSON(t *testing.T) {
	snap := testSnapshot(t)
	var buf bytes.Buffer
	if err := Render(&buf, snap, "JSON"); err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if doc.Snapshot != snap.ID.String() || !doc.Present {
		t.Errorf("unexpected header: %+v", doc)
	}
	if len(doc.Keys) != 1 || doc.Keys[0].Algorithm != "ed25519" {
		t.Fatalf("unexpected keys: %+v", doc.Keys)
	}
	fps := doc.Keys[0].Fingerprints
	if len(fps) != 3 {
		t.Fatalf("expected 3 fingerprints, got %d", len(fps))
	}
	for _, fp := range fps {
		if strings.Contains(fp.Hex, "\n") {
			t.Errorf("%s hex contains a line break", fp.Hash)
		}
	}
	if !strings.HasPrefix(fps[2].OpenSSH, "SHA256:") {
		t.Errorf("SHA-256 openssh form = %q", fps[2].OpenSSH)
	}
	if len(doc.Absent) != len(hostkeys.All())-1 {
		t.Errorf("expected %d absent algorithms, got %d", len(hostkeys.All())-1, len(doc.Absent))
	}
}

func TestRender_YAML(t *testing.T) {
	snap := testSnapshot(t)
	var buf bytes.Buffer
	if err := Render(&buf, snap, FormatYAML); err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc Document
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0].KeyType != "ssh-ed25519" {
		t.Errorf("unexpected keys: %+v", doc.Keys)
	}
	if doc.Absent[0].Algorithm != "rsa" || doc.Absent[0].Reason == "" {
		t.Errorf("unexpected absent entry: %+v", doc.Absent[0])
	}
}

func TestRender_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, nil, FormatText); !errors.Is(err, ErrNotGenerated) {
		t.Errorf("expected ErrNotGenerated, got %v", err)
	}
	if err := Render(&buf, testSnapshot(t), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
