package stream

import (
	"sort"
	"strings"
)

// IndexFormat is the format tag of the top-level index document.
const IndexFormat = "index:1.0"

// IndexPath is the index location relative to the stream base directory.
const IndexPath = "streams/v1/index.json"

// Index is the top-level document listing every product file in the stream.
type Index struct {
	Format  string                `json:"format"`
	Index   map[string]IndexEntry `json:"index"`
	Updated string                `json:"updated,omitempty"`
}

// IndexEntry describes one product file.
type IndexEntry struct {
	DataType string   `json:"datatype"`
	Format   string   `json:"format,omitempty"`
	Path     string   `json:"path"`
	Products []string `json:"products"`
	Updated  string   `json:"updated,omitempty"`
}

// NewIndex returns an empty index document.
func NewIndex() *Index {
	return &Index{Format: IndexFormat, Index: map[string]IndexEntry{}}
}

// Entry builds the index entry for a product file. The product list is
// sorted so that re-serialization is stable.
func (p *Products) Entry() IndexEntry {
	return IndexEntry{
		DataType: p.DataType,
		Format:   p.Format,
		Path:     ProductFilePath(p.ContentID),
		Products: p.ProductIDs(),
	}
}

// EntryEquals reports whether the entry matches e in everything except the
// updated stamp. Used to avoid index (and signature) churn when a mutation
// didn't change a file's product-id set.
func (e IndexEntry) EntryEquals(other IndexEntry) bool {
	if e.DataType != other.DataType || e.Format != other.Format || e.Path != other.Path {
		return false
	}

	if len(e.Products) != len(other.Products) {
		return false
	}

	for i, pid := range e.Products {
		if other.Products[i] != pid {
			return false
		}
	}

	return true
}

// Serialize renders the index with deterministic key ordering.
func (ix *Index) Serialize() ([]byte, error) {
	return serializeDocument(ix)
}

// SerializeSigned renders the index for embedding in the self-contained
// signed form: every referenced ".json" path is rewritten to ".sjson" so
// clients following the signed index stay on signed documents.
func (ix *Index) SerializeSigned() ([]byte, error) {
	signed := Index{Format: ix.Format, Updated: ix.Updated, Index: make(map[string]IndexEntry, len(ix.Index))}
	for cid, entry := range ix.Index {
		entry.Path = strings.TrimSuffix(entry.Path, ".json") + ".sjson"
		signed.Index[cid] = entry
	}

	return serializeDocument(&signed)
}

// ContentIDs returns the sorted content ids listed in the index.
func (ix *Index) ContentIDs() []string {
	return sortedKeys(ix.Index)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}
