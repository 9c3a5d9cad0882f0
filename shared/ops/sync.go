package ops

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/canonical/bootstream/shared/logger"
	"github.com/canonical/bootstream/shared/stream"
)

// apply persists a successful plan: the staged product files replace the
// loaded ones, index entries are recomputed for files whose product-id set
// or datatype changed, and every document whose bytes changed is rewritten
// and re-signed. Documents the plan didn't touch keep their existing
// signatures, so unrelated signature churn never happens.
func (e *Engine) apply(staged map[string]*stream.Products, res *Result) error {
	if len(staged) == 0 {
		return nil
	}

	s := e.Stream
	if s.Index == nil {
		s.Index = stream.NewIndex()
	}

	now := stream.Timestamp(time.Now())
	indexChanged := false

	for _, cid := range sortedContentIDs(staged) {
		doc := staged[cid]
		doc.Updated = now
		s.Products[cid] = doc

		entry := doc.Entry()
		old, ok := s.Index.Index[cid]
		if !ok || !entry.EntryEquals(old) {
			entry.Updated = now
			s.Index.Index[cid] = entry
			indexChanged = true
		}
	}

	for _, cid := range sortedContentIDs(staged) {
		doc := staged[cid]
		relPath := stream.ProductFilePath(cid)

		data, err := doc.Serialize()
		if err != nil {
			return err
		}

		existing, err := s.ReadDocument(relPath)
		if err != nil {
			return err
		}

		if bytes.Equal(existing, data) {
			continue
		}

		err = s.WriteDocument(relPath, data)
		if err != nil {
			return err
		}

		res.Written = append(res.Written, relPath)

		err = e.signDocument(relPath, data, data, res)
		if err != nil {
			return err
		}
	}

	if indexChanged {
		s.Index.Updated = now

		err := e.writeIndex(res)
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) writeIndex(res *Result) error {
	data, err := e.Stream.Index.Serialize()
	if err != nil {
		return err
	}

	err = e.Stream.WriteDocument(stream.IndexPath, data)
	if err != nil {
		return err
	}

	res.Written = append(res.Written, stream.IndexPath)

	inline, err := e.Stream.Index.SerializeSigned()
	if err != nil {
		return err
	}

	return e.signDocument(stream.IndexPath, data, inline, res)
}

// signDocument regenerates both signed forms of one document. The detached
// signature covers the exact bytes of the plain document; the inline form
// embeds inlineContent, which differs from content only for the index
// (referenced paths are rewritten to their signed variants). With no signer
// configured the stale signed forms are removed instead, so a reader never
// pairs the new content with a signature over the old one.
func (e *Engine) signDocument(relPath string, content []byte, inlineContent []byte, res *Result) error {
	inlinePath := strings.TrimSuffix(relPath, ".json") + ".sjson"

	if e.Signer == nil {
		logger.Debug("Signature generation disabled, pruning signed forms", logger.Ctx{"path": relPath})

		err := e.Stream.RemoveDocument(relPath + ".gpg")
		if err != nil {
			return err
		}

		return e.Stream.RemoveDocument(inlinePath)
	}

	detached, err := e.Signer.Sign(content)
	if err != nil {
		return err
	}

	sigPath := relPath + ".gpg"
	err = e.Stream.WriteDocument(sigPath, detached)
	if err != nil {
		return err
	}

	inline, err := e.Signer.SignInline(inlineContent)
	if err != nil {
		return err
	}

	err = e.Stream.WriteDocument(inlinePath, inline)
	if err != nil {
		return err
	}

	res.Written = append(res.Written, sigPath, inlinePath)
	return nil
}

// SignStream regenerates the index from the loaded product files and
// re-signs every document in the stream, signing product files over their
// exact current on-disk bytes. This is the explicit "sign" entry point; it
// always rewrites the index.
func (e *Engine) SignStream() (*Result, error) {
	s := e.Stream
	if s.Index == nil {
		s.Index = stream.NewIndex()
	}

	now := stream.Timestamp(time.Now())
	res := &Result{}

	for _, cid := range s.ContentIDs() {
		doc := s.Products[cid]

		// The entry carries the product file's own updated stamp.
		entry := doc.Entry()
		entry.Updated = doc.Updated
		if entry.Updated == "" {
			entry.Updated = now
		}

		s.Index.Index[cid] = entry

		relPath := stream.ProductFilePath(cid)
		data, err := s.ReadDocument(relPath)
		if err != nil {
			return nil, err
		}

		if data == nil {
			// Loaded but missing on disk can only mean an outside
			// actor removed it since the load.
			return nil, stream.MissingProductFileError{ContentID: cid, Path: relPath}
		}

		err = e.signDocument(relPath, data, data, res)
		if err != nil {
			return nil, err
		}
	}

	s.Index.Updated = now

	err := e.writeIndex(res)
	if err != nil {
		return nil, err
	}

	res.Changed = s.ContentIDs()
	return res, nil
}

func sortedContentIDs(staged map[string]*stream.Products) []string {
	ids := make([]string, 0, len(staged))
	for cid := range staged {
		ids = append(ids, cid)
	}

	sort.Strings(ids)
	return ids
}
