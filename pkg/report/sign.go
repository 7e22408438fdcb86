package report

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const signaturePrefix = "sshsig-v1"

// ErrBadSignature is returned when a signature does not match its file.
var ErrBadSignature = errors.New("signature mismatch")

// SignaturePath returns where the signature of path is stored.
func SignaturePath(path string) string {
	return path + ".sig"
}

// SignFile signs the contents of path with the SSH private key at keyPath
// and writes the signature next to it. An empty keyPath picks the first of
// the usual keys in ~/.ssh.
func SignFile(keyPath, path string) (string, error) {
	resolved, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read signing key %q: %w", resolved, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return "", fmt.Errorf("parse signing key %q: %w", resolved, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig, err := signer.Sign(rand.Reader, data)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", path, err)
	}
	pubB64 := base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal())
	sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
	line := fmt.Sprintf("%s:%s:%s:%s\n", signaturePrefix, sig.Format, pubB64, sigB64)

	sigPath := SignaturePath(path)
	if err := writeAtomic(sigPath, []byte(line)); err != nil {
		return "", err
	}
	return sigPath, nil
}

// VerifySignature checks the signature stored next to path and returns the
// signing key. When trusted is non-nil the signing key must equal it.
func VerifySignature(path string, trusted ssh.PublicKey) (ssh.PublicKey, error) {
	line, err := os.ReadFile(SignaturePath(path))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	pub, sig, err := parseSignature(strings.TrimSpace(string(line)))
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", path, err)
	}
	if trusted != nil && !bytes.Equal(pub.Marshal(), trusted.Marshal()) {
		return nil, fmt.Errorf("verify %s: signed by untrusted key %s", path, ssh.FingerprintSHA256(pub))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if err := pub.Verify(data, sig); err != nil {
		return nil, fmt.Errorf("verify %s: %w: %v", path, ErrBadSignature, err)
	}
	return pub, nil
}

// LoadAuthorizedKey reads the first public key in an authorized_keys style
// file, such as id_ed25519.pub.
func LoadAuthorizedKey(path string) (ssh.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key %q: %w", path, err)
	}
	return pub, nil
}

func parseSignature(line string) (ssh.PublicKey, *ssh.Signature, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 4 || parts[0] != signaturePrefix {
		return nil, nil, fmt.Errorf("malformed signature")
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, fmt.Errorf("decode public key: %w", err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse public key: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, nil, fmt.Errorf("decode signature: %w", err)
	}
	return pub, &ssh.Signature{Format: parts[1], Blob: blob}, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		candidate := filepath.Join(home, ".ssh", name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
