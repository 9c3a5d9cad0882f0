// Package artifact verifies that claimed artifact references (path,
// checksum, size) match the actual files under a stream base directory.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Ref is one claimed artifact: a path relative to the stream base
// directory, the expected content hash and the expected size.
type Ref struct {
	Path   string
	SHA256 string
	Size   int64
}

// MissingFileError means the referenced file does not exist in the tree.
type MissingFileError struct {
	Path string
}

func (e MissingFileError) Error() string {
	return fmt.Sprintf("Artifact file %q is missing", e.Path)
}

// ChecksumError means the file exists but its size or content hash doesn't
// match the reference.
type ChecksumError struct {
	Path   string
	Field  string
	Expect string
	Actual string
}

func (e ChecksumError) Error() string {
	return fmt.Sprintf("Artifact %q has %s %s, expected %s", e.Path, e.Field, e.Actual, e.Expect)
}

// Resolve validates the reference against the tree rooted at baseDir and
// returns the absolute path of the file.
func Resolve(baseDir string, ref Ref) (string, error) {
	if ref.Path == "" || strings.HasPrefix(ref.Path, "/") || strings.Contains(ref.Path, "..") {
		return "", fmt.Errorf("Artifact path %q doesn't resolve under the stream directory", ref.Path)
	}

	absPath := filepath.Join(baseDir, ref.Path)

	err := Verify(absPath, ref.SHA256, ref.Size)
	if err != nil {
		return "", err
	}

	return absPath, nil
}

// Verify reads and hashes the file at absPath and compares it against the
// expected sha256 and size. A negative expected size skips the size check.
func Verify(absPath string, expectedSHA256 string, expectedSize int64) error {
	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return MissingFileError{Path: absPath}
		}

		return err
	}

	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if expectedSize >= 0 && info.Size() != expectedSize {
		return ChecksumError{
			Path:   absPath,
			Field:  "size",
			Expect: fmt.Sprintf("%d", expectedSize),
			Actual: fmt.Sprintf("%d", info.Size()),
		}
	}

	hash := sha256.New()
	_, err = io.Copy(hash, f)
	if err != nil {
		return err
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if actual != expectedSHA256 {
		return ChecksumError{Path: absPath, Field: "sha256", Expect: expectedSHA256, Actual: actual}
	}

	return nil
}

// Hash returns the sha256 and size of the file at absPath. Used by the
// upstream pipeline helpers and by tests to build references.
func Hash(absPath string) (string, int64, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", 0, err
	}

	defer func() { _ = f.Close() }()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hash.Sum(nil)), size, nil
}
