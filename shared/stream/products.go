package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProductsFormat is the format tag carried by every product file.
const ProductsFormat = "products:1.0"

// DefaultDataType is used for product files created from scratch.
const DefaultDataType = "image-ids"

// TimestampLayout is the simplestreams wall-clock format used for every
// "updated" field, e.g. "Tue, 17 Feb 2026 08:15:00 +0000".
const TimestampLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// Timestamp renders t in the simplestreams "updated" format (always UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Products represents one product file (e.g. com.ubuntu.maas:v3:download.json).
type Products struct {
	ContentID string             `json:"content_id"`
	DataType  string             `json:"datatype"`
	Format    string             `json:"format"`
	Products  map[string]Product `json:"products"`
	Updated   string             `json:"updated,omitempty"`
}

// Product is a single attribute-tagged family of artifacts. Attributes is an
// open bag; unknown keys round-trip unmodified and are what filters match
// against.
type Product struct {
	Attributes map[string]string
	Versions   map[string]Version
}

// Version is a dated snapshot of a product's artifact set.
type Version struct {
	Items   map[string]Item `json:"items"`
	Updated string          `json:"updated,omitempty"`
}

// Item references one physical file in the tree. Path is relative to the
// stream base directory. Extra holds per-item tags (kernel release, subarch
// list, ...) that pass through unmodified.
type Item struct {
	FileType string
	Path     string
	SHA256   string
	Size     int64
	Extra    map[string]any
}

// MarshalJSON flattens the attribute bag next to the versions map.
func (p Product) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Attributes)+1)
	for k, v := range p.Attributes {
		m[k] = v
	}

	m["versions"] = p.Versions

	return json.Marshal(m)
}

// UnmarshalJSON splits the product record into the versions map and the open
// attribute bag. Attribute values must be strings.
func (p *Product) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	p.Attributes = map[string]string{}
	for k, v := range raw {
		if k == "versions" {
			err := json.Unmarshal(v, &p.Versions)
			if err != nil {
				return err
			}

			continue
		}

		var s string
		err := json.Unmarshal(v, &s)
		if err != nil {
			return fmt.Errorf("Product attribute %q is not a string", k)
		}

		p.Attributes[k] = s
	}

	if p.Versions == nil {
		p.Versions = map[string]Version{}
	}

	return nil
}

// MarshalJSON writes the fixed item fields next to the pass-through tags.
func (i Item) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(i.Extra)+4)
	for k, v := range i.Extra {
		m[k] = v
	}

	m["ftype"] = i.FileType
	m["path"] = i.Path
	m["sha256"] = i.SHA256
	m["size"] = i.Size

	return json.Marshal(m)
}

// UnmarshalJSON extracts the fixed item fields and keeps everything else in
// the Extra bag.
func (i *Item) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	i.Extra = map[string]any{}
	for k, v := range raw {
		switch k {
		case "ftype":
			err = json.Unmarshal(v, &i.FileType)
		case "path":
			err = json.Unmarshal(v, &i.Path)
		case "sha256":
			err = json.Unmarshal(v, &i.SHA256)
		case "size":
			err = json.Unmarshal(v, &i.Size)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			i.Extra[k] = val
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Copy returns a structurally independent copy of the version.
func (v Version) Copy() Version {
	out := Version{Updated: v.Updated, Items: make(map[string]Item, len(v.Items))}
	for name, item := range v.Items {
		out.Items[name] = item.Copy()
	}

	return out
}

// Copy returns a structurally independent copy of the item.
func (i Item) Copy() Item {
	out := i
	out.Extra = make(map[string]any, len(i.Extra))
	for k, v := range i.Extra {
		out.Extra[k] = v
	}

	return out
}

// Copy returns a structurally independent copy of the whole product file.
func (p *Products) Copy() *Products {
	out := &Products{
		ContentID: p.ContentID,
		DataType:  p.DataType,
		Format:    p.Format,
		Updated:   p.Updated,
		Products:  make(map[string]Product, len(p.Products)),
	}

	for pid, prod := range p.Products {
		cp := Product{
			Attributes: make(map[string]string, len(prod.Attributes)),
			Versions:   make(map[string]Version, len(prod.Versions)),
		}

		for k, v := range prod.Attributes {
			cp.Attributes[k] = v
		}

		for vid, ver := range prod.Versions {
			cp.Versions[vid] = ver.Copy()
		}

		out.Products[pid] = cp
	}

	return out
}

// ProductIDs returns the sorted product ids contained in the file.
func (p *Products) ProductIDs() []string {
	return sortedKeys(p.Products)
}

// Validate checks the invariants every loaded product file must hold.
func (p *Products) Validate() error {
	if p.ContentID == "" {
		return fmt.Errorf("Missing content_id")
	}

	if p.Format != ProductsFormat {
		return fmt.Errorf("Unexpected format %q", p.Format)
	}

	for pid, prod := range p.Products {
		for vid, ver := range prod.Versions {
			for name, item := range ver.Items {
				if item.Path == "" || item.SHA256 == "" || item.FileType == "" {
					return fmt.Errorf("Item %s/%s/%s is missing path, sha256 or ftype", pid, vid, name)
				}

				if item.Size <= 0 {
					return fmt.Errorf("Item %s/%s/%s has invalid size %d", pid, vid, name, item.Size)
				}
			}
		}
	}

	return nil
}

// Serialize renders the document with deterministic key ordering so that
// unrelated edits never produce spurious diffs.
func (p *Products) Serialize() ([]byte, error) {
	return serializeDocument(p)
}

func serializeDocument(doc any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}
