package sign

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GPG signs and verifies by shelling out to the gpg binary, the same way
// the stream publishing pipeline always has. KeyID selects the secret key
// used for signing (gpg's default key when empty); Keyring, when set, is
// used exclusively for verification instead of the default keyrings.
type GPG struct {
	KeyID   string
	Keyring string
}

// Sign produces an armored detached signature over content.
func (g *GPG) Sign(content []byte) ([]byte, error) {
	args := []string{"--armor", "--detach-sign", "--output", "-"}
	if g.KeyID != "" {
		args = append(args, "--local-user", g.KeyID)
	}

	return g.run(content, args...)
}

// SignInline produces a clearsigned document embedding content.
func (g *GPG) SignInline(content []byte) ([]byte, error) {
	args := []string{"--armor", "--clearsign", "--output", "-"}
	if g.KeyID != "" {
		args = append(args, "--local-user", g.KeyID)
	}

	return g.run(content, args...)
}

// Verify checks a detached signature against content.
func (g *GPG) Verify(content []byte, signature []byte) error {
	tmpDir, err := os.MkdirTemp("", "bootstream-verify-")
	if err != nil {
		return err
	}

	defer func() { _ = os.RemoveAll(tmpDir) }()

	contentPath := filepath.Join(tmpDir, "content")
	sigPath := filepath.Join(tmpDir, "content.gpg")

	err = os.WriteFile(contentPath, content, 0600)
	if err != nil {
		return err
	}

	err = os.WriteFile(sigPath, signature, 0600)
	if err != nil {
		return err
	}

	args := append(g.keyringArgs(), "--verify", sigPath, contentPath)
	_, err = g.run(nil, args...)
	if err != nil {
		return MismatchError{Err: err}
	}

	return nil
}

// VerifyInline checks a clearsigned document and returns the embedded
// content.
func (g *GPG) VerifyInline(signed []byte) ([]byte, error) {
	args := append(g.keyringArgs(), "--decrypt", "--output", "-")
	content, err := g.run(signed, args...)
	if err != nil {
		return nil, MismatchError{Err: err}
	}

	return content, nil
}

func (g *GPG) keyringArgs() []string {
	if g.Keyring == "" {
		return nil
	}

	return []string{"--no-default-keyring", "--keyring", g.Keyring}
}

func (g *GPG) run(stdin []byte, args ...string) ([]byte, error) {
	args = append([]string{"--batch", "--yes"}, args...)

	cmd := exec.Command("gpg", args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if isKeyringFailure(err, stderr.String()) {
			return nil, fmt.Errorf("%w: gpg: %v", ErrKeyringUnavailable, strings.TrimSpace(stderr.String()))
		}

		return nil, fmt.Errorf("gpg %s: %v: %s", args[len(args)-1], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

func isKeyringFailure(err error, stderr string) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		// gpg binary not installed.
		return true
	}

	for _, marker := range []string{"No secret key", "no default secret key", "keyring", "No public key"} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}

	return false
}
