package sign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	inlineHeader    = "-----BEGIN BOOTSTREAM SIGNED MESSAGE-----"
	inlineSigMarker = "-----BEGIN BOOTSTREAM SIGNATURE-----"
	inlineFooter    = "-----END BOOTSTREAM SIGNATURE-----"

	sigPrefix = "ed25519"
)

// Ed25519 is the in-process signing backend. The detached form is a single
// "ed25519:<keyid>:<hex>" line; the self-contained form wraps the content
// in a clearsign-style envelope carrying the same line.
type Ed25519 struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519 generates a fresh key pair. Used by tests and for
// bootstrapping a new signing identity.
func NewEd25519() (*Ed25519, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	return newFromPriv(priv, pub), nil
}

// LoadEd25519 reads a key file containing the hex-encoded 32-byte seed.
func LoadEd25519(path string) (*Ed25519, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: key file %q doesn't hold a hex ed25519 seed", ErrKeyringUnavailable, path)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return newFromPriv(priv, priv.Public().(ed25519.PublicKey)), nil
}

func newFromPriv(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Ed25519 {
	return &Ed25519{priv: priv, pub: pub, keyID: hex.EncodeToString(pub)[:16]}
}

// KeyID returns the short identifier embedded in signatures.
func (s *Ed25519) KeyID() string {
	return s.keyID
}

// WriteKey persists the hex seed so the same identity can be reloaded.
func (s *Ed25519) WriteKey(path string) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(s.priv.Seed())+"\n"), 0600)
}

// Sign returns the detached signature line over content.
func (s *Ed25519) Sign(content []byte) ([]byte, error) {
	sig := ed25519.Sign(s.priv, content)
	return []byte(fmt.Sprintf("%s:%s:%s\n", sigPrefix, s.keyID, hex.EncodeToString(sig))), nil
}

// SignInline wraps content in the signed envelope.
func (s *Ed25519) SignInline(content []byte) ([]byte, error) {
	// The envelope is line-based, so the embedded content always ends
	// with a newline and the signature covers exactly what is embedded.
	if len(content) > 0 && content[len(content)-1] != '\n' {
		content = append(append([]byte{}, content...), '\n')
	}

	sig, err := s.Sign(content)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(inlineHeader + "\n")
	buf.Write(content)
	buf.WriteString(inlineSigMarker + "\n")
	buf.Write(sig)
	buf.WriteString(inlineFooter + "\n")

	return buf.Bytes(), nil
}

// Verify checks a detached signature line against content.
func (s *Ed25519) Verify(content []byte, signature []byte) error {
	fields := strings.Split(strings.TrimSpace(string(signature)), ":")
	if len(fields) != 3 || fields[0] != sigPrefix {
		return MismatchError{Err: fmt.Errorf("unparsable signature")}
	}

	if fields[1] != s.keyID {
		return MismatchError{Err: fmt.Errorf("signature by unknown key %q", fields[1])}
	}

	sig, err := hex.DecodeString(fields[2])
	if err != nil {
		return MismatchError{Err: fmt.Errorf("unparsable signature")}
	}

	if !ed25519.Verify(s.pub, content, sig) {
		return MismatchError{Err: fmt.Errorf("content doesn't match signature")}
	}

	return nil
}

// VerifyInline checks the signed envelope and returns the embedded content.
func (s *Ed25519) VerifyInline(signed []byte) ([]byte, error) {
	text := string(signed)
	if !strings.HasPrefix(text, inlineHeader+"\n") {
		return nil, MismatchError{Err: fmt.Errorf("missing envelope header")}
	}

	text = strings.TrimPrefix(text, inlineHeader+"\n")

	idx := strings.Index(text, inlineSigMarker+"\n")
	if idx < 0 {
		return nil, MismatchError{Err: fmt.Errorf("missing signature section")}
	}

	content := []byte(text[:idx])
	sigBlock := strings.TrimSuffix(text[idx+len(inlineSigMarker)+1:], inlineFooter+"\n")

	err := s.Verify(content, []byte(sigBlock))
	if err != nil {
		return nil, err
	}

	return content, nil
}
