package stream

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StreamsDir is where the metadata documents live, relative to the base
// directory.
const StreamsDir = "streams/v1"

// tmpSuffix marks staged documents that have not yet been renamed into
// place. A leftover one means an earlier run died mid-write.
const tmpSuffix = ".tmp"

// ProductFilePath returns the on-disk location of a product file relative
// to the stream base directory.
func ProductFilePath(contentID string) string {
	return StreamsDir + "/" + contentID + ".json"
}

// Stream is a whole catalog loaded into memory: the index plus every
// product file it references, keyed by content id.
type Stream struct {
	baseDir string

	Index    *Index
	Products map[string]*Products
}

// BaseDir returns the directory the stream was loaded from.
func (s *Stream) BaseDir() string {
	return s.baseDir
}

// Load reads a catalog from baseDir. It is all-or-nothing: any unreadable
// or invalid document fails the whole load, so every later mutation can
// assume a fully validated view.
func Load(baseDir string) (*Stream, error) {
	s, err := load(baseDir, false)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// LoadOrInit behaves like Load but returns a fresh empty catalog when no
// index exists yet (first-time build of a tree).
func LoadOrInit(baseDir string) (*Stream, error) {
	return load(baseDir, true)
}

func load(baseDir string, initEmpty bool) (*Stream, error) {
	s := &Stream{baseDir: baseDir, Products: map[string]*Products{}}

	err := s.checkStaging()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(baseDir, IndexPath))
	if err != nil {
		if os.IsNotExist(err) && initEmpty {
			s.Index = NewIndex()
			return s, nil
		}

		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	index := &Index{}
	err = json.Unmarshal(data, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	if index.Format != IndexFormat {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrCorruptIndex, index.Format)
	}

	if index.Index == nil {
		index.Index = map[string]IndexEntry{}
	}

	s.Index = index

	for cid, entry := range index.Index {
		doc, err := s.loadProducts(cid, entry)
		if err != nil {
			return nil, err
		}

		s.Products[cid] = doc
	}

	return s, nil
}

func (s *Stream) loadProducts(cid string, entry IndexEntry) (*Products, error) {
	path := entry.Path
	if path == "" {
		path = ProductFilePath(cid)
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, MissingProductFileError{ContentID: cid, Path: path}
		}

		return nil, err
	}

	doc := &Products{}
	err = json.Unmarshal(data, doc)
	if err != nil {
		return nil, MalformedProductError{ContentID: cid, Err: err}
	}

	if doc.Products == nil {
		doc.Products = map[string]Product{}
	}

	err = doc.Validate()
	if err != nil {
		return nil, MalformedProductError{ContentID: cid, Err: err}
	}

	if doc.ContentID != cid {
		return nil, MalformedProductError{ContentID: cid, Err: fmt.Errorf("content_id is %q", doc.ContentID)}
	}

	// The index must only list products that actually exist in the file.
	for _, pid := range entry.Products {
		_, ok := doc.Products[pid]
		if !ok {
			return nil, fmt.Errorf("%w: %q lists unknown product %q", ErrCorruptIndex, cid, pid)
		}
	}

	return doc, nil
}

// checkStaging fails when a staged document from an interrupted run is
// still lying around in the streams directory.
func (s *Stream) checkStaging() error {
	dir := filepath.Join(s.baseDir, StreamsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), tmpSuffix) {
			return fmt.Errorf("%w: %s", ErrPartialWriteDetected, filepath.Join(StreamsDir, entry.Name()))
		}
	}

	return nil
}

// ReadDocument returns the current bytes of a document, or nil when it
// doesn't exist yet.
func (s *Stream) ReadDocument(relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	return data, nil
}

// WriteDocument publishes a document by staging it next to its target and
// renaming it into place, so a concurrent reader never observes a
// half-written file.
func (s *Stream) WriteDocument(relPath string, data []byte) error {
	target := filepath.Join(s.baseDir, relPath)

	err := os.MkdirAll(filepath.Dir(target), 0755)
	if err != nil {
		return err
	}

	staged := target + tmpSuffix
	err = os.WriteFile(staged, data, 0644)
	if err != nil {
		return err
	}

	err = os.Rename(staged, target)
	if err != nil {
		_ = os.Remove(staged)
		return err
	}

	return nil
}

// RemoveDocument deletes a document if present.
func (s *Stream) RemoveDocument(relPath string) error {
	err := os.Remove(filepath.Join(s.baseDir, relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// ContentIDs returns the sorted content ids of the loaded product files.
func (s *Stream) ContentIDs() []string {
	return sortedKeys(s.Products)
}
