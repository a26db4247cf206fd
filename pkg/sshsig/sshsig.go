// Package sshsig signs and verifies native commits with SSH keys. A
// signature is stored in the commit's signature header as
//
//	sshsig-v1:<format>:<base64 public key>:<base64 signature blob>
package sshsig

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

	"github.com/odvcencio/hgbridge/pkg/object"
)

const signaturePrefix = "sshsig-v1"

var (
	// ErrBadSignature reports a signature that does not verify.
	ErrBadSignature = errors.New("bad signature")
	// ErrUntrustedSigner reports a valid signature from a key that is not
	// allowed.
	ErrUntrustedSigner = errors.New("signer is not allowed")
	// ErrUnsigned reports a commit without signature.
	ErrUnsigned = errors.New("commit is not signed")
)

// Signer signs payloads with one SSH key.
type Signer struct {
	signer ssh.Signer
	pubB64 string
}

// NewSigner wraps an ssh.Signer.
func NewSigner(s ssh.Signer) *Signer {
	return &Signer{
		signer: s,
		pubB64: base64.StdEncoding.EncodeToString(s.PublicKey().Marshal()),
	}
}

// LoadSigner reads a private key. An empty path picks the first default key
// in ~/.ssh. It returns the resolved path alongside the signer.
func LoadSigner(keyPath string) (*Signer, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}
	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}
	return NewSigner(signer), resolvedPath, nil
}

// PublicKey returns the signing key's public half.
func (s *Signer) PublicKey() ssh.PublicKey { return s.signer.PublicKey() }

// Sign returns the encoded signature of payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	sig, err := s.signer.Sign(rand.Reader, payload)
	if err != nil {
		return "", err
	}
	sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
	return fmt.Sprintf("%s:%s:%s:%s", signaturePrefix, sig.Format, s.pubB64, sigB64), nil
}

// SignCommit sets c's signature over its signing payload.
func (s *Signer) SignCommit(c *object.CommitObj) error {
	sig, err := s.Sign(object.CommitSigningPayload(c))
	if err != nil {
		return fmt.Errorf("sign commit: %w", err)
	}
	c.Signature = sig
	return nil
}

// Verify checks that encoded is a valid signature of payload made by one
// of the allowed keys. With no allowed keys any valid signature passes.
func Verify(encoded string, payload []byte, allowed []ssh.PublicKey) error {
	parts := strings.Split(strings.TrimSpace(encoded), ":")
	if len(parts) != 4 || parts[0] != signaturePrefix {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("%w: signature blob: %v", ErrBadSignature, err)
	}
	if err := pub.Verify(payload, &ssh.Signature{Format: parts[1], Blob: blob}); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, k := range allowed {
		if bytes.Equal(k.Marshal(), pubRaw) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUntrustedSigner, ssh.FingerprintSHA256(pub))
}

// VerifyCommit verifies c's signature header.
func VerifyCommit(c *object.CommitObj, allowed []ssh.PublicKey) error {
	if strings.TrimSpace(c.Signature) == "" {
		return ErrUnsigned
	}
	return Verify(c.Signature, object.CommitSigningPayload(c), allowed)
}

// ParseAllowedSigners reads public keys, one per line, in authorized_keys
// form with an optional leading principal. Blank lines and comments are
// skipped.
func ParseAllowedSigners(data []byte) ([]ssh.PublicKey, error) {
	var keys []ssh.PublicKey
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			_, rest, ok := bytes.Cut(line, []byte(" "))
			if !ok {
				return nil, fmt.Errorf("allowed signers line %d: %w", i+1, err)
			}
			key, _, _, _, err = ssh.ParseAuthorizedKey(bytes.TrimSpace(rest))
			if err != nil {
				return nil, fmt.Errorf("allowed signers line %d: %w", i+1, err)
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// LoadAllowedSigners reads ParseAllowedSigners input from path.
func LoadAllowedSigners(path string) ([]ssh.PublicKey, error) {
	expanded, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read allowed signers: %w", err)
	}
	return ParseAllowedSigners(data)
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
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
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
