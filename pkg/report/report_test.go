package report

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
	"github.com/ipxe/people-mareo-ipxe/pkg/store"
)

type staticSource []store.HistoryPoint

func (s staticSource) History(context.Context, string, string) ([]store.HistoryPoint, error) {
	return s, nil
}

func samplePoints() staticSource {
	base := time.Date(2017, 2, 1, 0, 0, 0, 0, time.UTC)
	return staticSource{
		{Hash: "a1", Title: "first", Time: base, Sizes: elfinfo.Sizes{Total: 100, Text: 80, Data: 20, BSS: 4}},
		{Hash: "b2", Title: "no change", Time: base.Add(time.Hour), Sizes: elfinfo.Sizes{Total: 100, Text: 80, Data: 20, BSS: 4}},
		{Hash: "c3", Title: "shrink", Time: base.Add(2 * time.Hour), Sizes: elfinfo.Sizes{Total: 90, Text: 70, Data: 20, BSS: 8}},
	}
}

func TestBuildHistoryAndDeltas(t *testing.T) {
	h, err := BuildHistory(context.Background(), samplePoints(), "bin", "ipxe.lkrn.tmp")
	if err != nil {
		t.Fatalf("BuildHistory: %v", err)
	}
	if h.Target != "bin" || h.Name != "ipxe.lkrn.tmp" || len(h.Points) != 3 {
		t.Fatalf("history = %+v", h)
	}
	deltas := h.Deltas()
	if len(deltas) != 1 {
		t.Fatalf("deltas = %+v, want one", deltas)
	}
	want := Delta{Hash: "c3", Title: "shrink", Total: -10, Text: -10, Data: 0, BSS: 4}
	if deltas[0] != want {
		t.Fatalf("delta = %+v, want %+v", deltas[0], want)
	}
}

func TestBuildHistoryEmpty(t *testing.T) {
	_, err := BuildHistory(context.Background(), staticSource{}, "bin", "nothing.o")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	h, err := BuildHistory(context.Background(), samplePoints(), "bin", "ipxe.lkrn.tmp")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Export(&buf, h); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if bytes.HasPrefix(buf.Bytes(), []byte("{")) {
		t.Fatal("export is not compressed")
	}

	got, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.Name != h.Name || len(got.Points) != len(h.Points) {
		t.Fatalf("imported = %+v", got)
	}
	if got.Points[2].Sizes != h.Points[2].Sizes || !got.Points[2].Time.Equal(h.Points[2].Time) {
		t.Fatalf("point = %+v, want %+v", got.Points[2], h.Points[2])
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	if _, err := Import(strings.NewReader("plain text")); err == nil {
		t.Fatal("expected error for uncompressed input")
	}
}

func TestWriteFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json.zst")
	h, _ := BuildHistory(context.Background(), samplePoints(), "bin", "x.o")

	if err := WriteFile(path, h); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Name != "x.o" {
		t.Fatalf("name = %q", got.Name)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want only the export", len(entries))
	}
}

// writeKeyPair stores a fresh ed25519 key pair in OpenSSH format and
// returns the private key path and the public key.
func writeKeyPair(t *testing.T, dir, name string) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(dir, name)
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath+".pub", ssh.MarshalAuthorizedKey(sshPub), 0o644); err != nil {
		t.Fatal(err)
	}
	return keyPath, sshPub
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	keyPath, pub := writeKeyPair(t, dir, "id_ed25519")
	path := filepath.Join(dir, "export.zst")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	sigPath, err := SignFile(keyPath, path)
	if err != nil {
		t.Fatalf("SignFile: %v", err)
	}
	if sigPath != path+".sig" {
		t.Fatalf("signature path = %q", sigPath)
	}
	line, _ := os.ReadFile(sigPath)
	if !strings.HasPrefix(string(line), "sshsig-v1:ssh-ed25519:") {
		t.Fatalf("signature = %q", line)
	}

	trusted, err := LoadAuthorizedKey(keyPath + ".pub")
	if err != nil {
		t.Fatalf("LoadAuthorizedKey: %v", err)
	}
	signer, err := VerifySignature(path, trusted)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !bytes.Equal(signer.Marshal(), pub.Marshal()) {
		t.Fatal("verified key differs from signing key")
	}
	if _, err := VerifySignature(path, nil); err != nil {
		t.Fatalf("VerifySignature without trusted key: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	keyPath, _ := writeKeyPair(t, dir, "id_ed25519")
	path := filepath.Join(dir, "export.zst")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := SignFile(keyPath, path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("payl0ad"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := VerifySignature(path, nil); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsUntrustedKey(t *testing.T) {
	dir := t.TempDir()
	keyPath, _ := writeKeyPair(t, dir, "signer")
	_, other := writeKeyPair(t, dir, "other")
	path := filepath.Join(dir, "export.zst")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := SignFile(keyPath, path); err != nil {
		t.Fatal(err)
	}
	_, err := VerifySignature(path, other)
	if err == nil || !strings.Contains(err.Error(), "untrusted key") {
		t.Fatalf("err = %v, want untrusted key error", err)
	}
}

func TestParseSignatureMalformed(t *testing.T) {
	for _, line := range []string{"", "sshsig-v1:a:b", "other:ssh-ed25519:AAAA:AAAA", "sshsig-v1:ssh-ed25519:!!:AAAA"} {
		if _, _, err := parseSignature(line); err == nil {
			t.Fatalf("parseSignature(%q) succeeded", line)
		}
	}
}

func TestResolveSigningKeyPathDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if _, err := resolveSigningKeyPath(""); err == nil {
		t.Fatal("expected error without default keys")
	}
	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0o700); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, ".ssh", "id_ecdsa")
	if err := os.WriteFile(want, []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := resolveSigningKeyPath("")
	if err != nil {
		t.Fatalf("resolveSigningKeyPath: %v", err)
	}
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
	got, err = resolveSigningKeyPath("~/.ssh/id_ecdsa")
	if err != nil || got != want {
		t.Fatalf("expanded = %q, %v", got, err)
	}
}
