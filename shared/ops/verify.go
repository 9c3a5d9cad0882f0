package ops

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/canonical/bootstream/shared/artifact"
	"github.com/canonical/bootstream/shared/sign"
	"github.com/canonical/bootstream/shared/stream"
)

// Finding is one integrity problem discovered by verification.
type Finding struct {
	Path string
	Err  error
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// VerifyStream checks every document's detached and self-contained signed
// forms against its current content, without touching the tree. With
// checkArtifacts it also re-hashes every referenced artifact file. It
// returns every problem found; an empty slice means the stream is intact.
func (e *Engine) VerifyStream(checkArtifacts bool) ([]Finding, error) {
	if e.Signer == nil {
		return nil, fmt.Errorf("%w: no verification capability configured", sign.ErrKeyringUnavailable)
	}

	findings := []Finding{}

	addFinding := func(path string, err error) {
		findings = append(findings, Finding{Path: path, Err: err})
	}

	verifyDoc := func(relPath string, compareInline bool) {
		content, err := e.Stream.ReadDocument(relPath)
		if err != nil {
			addFinding(relPath, err)
			return
		}

		if content == nil {
			addFinding(relPath, fmt.Errorf("document missing"))
			return
		}

		sigPath := relPath + ".gpg"
		sig, err := e.Stream.ReadDocument(sigPath)
		if err != nil {
			addFinding(sigPath, err)
		} else if sig == nil {
			addFinding(sigPath, sign.MismatchError{Path: sigPath, Err: fmt.Errorf("detached signature missing")})
		} else {
			err = e.Signer.Verify(content, sig)
			if err != nil {
				addFinding(sigPath, sign.MismatchError{Path: sigPath, Err: err})
			}
		}

		inlinePath := strings.TrimSuffix(relPath, ".json") + ".sjson"
		signed, err := e.Stream.ReadDocument(inlinePath)
		if err != nil {
			addFinding(inlinePath, err)
			return
		}

		if signed == nil {
			addFinding(inlinePath, sign.MismatchError{Path: inlinePath, Err: fmt.Errorf("signed form missing")})
			return
		}

		embedded, err := e.Signer.VerifyInline(signed)
		if err != nil {
			addFinding(inlinePath, sign.MismatchError{Path: inlinePath, Err: err})
			return
		}

		// The index's signed form embeds rewritten paths, so only the
		// product files are expected to embed the plain bytes.
		if compareInline && !bytes.Equal(embedded, content) {
			addFinding(inlinePath, sign.MismatchError{Path: inlinePath, Err: fmt.Errorf("embedded content differs from %s", relPath)})
		}
	}

	verifyDoc(stream.IndexPath, false)

	for _, cid := range e.Stream.ContentIDs() {
		verifyDoc(stream.ProductFilePath(cid), true)
	}

	if checkArtifacts {
		findings = append(findings, e.verifyArtifacts()...)
	}

	return findings, nil
}

func (e *Engine) verifyArtifacts() []Finding {
	findings := []Finding{}

	for _, cid := range e.Stream.ContentIDs() {
		doc := e.Stream.Products[cid]

		for _, pid := range doc.ProductIDs() {
			for vid, ver := range doc.Products[pid].Versions {
				for name, item := range ver.Items {
					ref := artifact.Ref{Path: item.Path, SHA256: item.SHA256, Size: item.Size}
					_, err := artifact.Resolve(e.Stream.BaseDir(), ref)
					if err != nil {
						findings = append(findings, Finding{
							Path: item.Path,
							Err:  fmt.Errorf("%s/%s/%s: %w", pid, vid, name, err),
						})
					}
				}
			}
		}
	}

	return findings
}

// Preflight verifies the document signatures and fails on the first
// problem. Used as a guard before destructive operations when a keyring is
// configured.
func (e *Engine) Preflight() error {
	findings, err := e.VerifyStream(false)
	if err != nil {
		return err
	}

	if len(findings) > 0 {
		return findings[0].Err
	}

	return nil
}
