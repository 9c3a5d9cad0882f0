package ops

import (
	"fmt"
	"time"

	"github.com/canonical/bootstream/shared/artifact"
	"github.com/canonical/bootstream/shared/logger"
	"github.com/canonical/bootstream/shared/stream"
)

// CreateRequest is the narrow contract with the upstream build pipeline:
// one built product/version and its named items, each with a precomputed
// content hash and size that the engine re-verifies against the tree.
type CreateRequest struct {
	ContentID  string
	DataType   string
	ProductID  string
	Attributes map[string]string
	VersionID  string
	Items      map[string]stream.Item
}

// CreateVersion builds or wholly replaces the version record for the
// request's product, so a rebuilt version never accretes stale items. The
// product must already be declared in the catalog unless attributes are
// supplied, which creates it fresh (first-time catalog builds).
func (e *Engine) CreateVersion(req CreateRequest, commit bool) (*Result, error) {
	if req.ContentID == "" || req.ProductID == "" || req.VersionID == "" {
		return nil, fmt.Errorf("Content id, product id and version id are all required")
	}

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("Version %q has no items", req.VersionID)
	}

	// Verify every claimed item against the tree before planning
	// anything; a single bad reference aborts the whole operation.
	for name, item := range req.Items {
		_, err := artifact.Resolve(e.Stream.BaseDir(), artifact.Ref{Path: item.Path, SHA256: item.SHA256, Size: item.Size})
		if err != nil {
			return nil, fmt.Errorf("Item %q: %w", name, err)
		}
	}

	staged := map[string]*stream.Products{}

	doc := e.Stream.Products[req.ContentID]
	var work *stream.Products
	if doc == nil {
		dataType := req.DataType
		if dataType == "" {
			dataType = stream.DefaultDataType
		}

		work = &stream.Products{
			ContentID: req.ContentID,
			DataType:  dataType,
			Format:    stream.ProductsFormat,
			Products:  map[string]stream.Product{},
		}

		staged[req.ContentID] = work
	} else {
		work = stagedFor(staged, doc)
	}

	prod, ok := work.Products[req.ProductID]
	if !ok {
		if len(req.Attributes) == 0 {
			return nil, UnknownProductError{ProductID: req.ProductID}
		}

		attrs := make(map[string]string, len(req.Attributes))
		for k, v := range req.Attributes {
			attrs[k] = v
		}

		prod = stream.Product{Attributes: attrs, Versions: map[string]stream.Version{}}
	}

	detail := ""
	_, exists := prod.Versions[req.VersionID]
	if exists {
		detail = "replaced existing version"
	}

	items := make(map[string]stream.Item, len(req.Items))
	for name, item := range req.Items {
		items[name] = item.Copy()
	}

	prod.Versions[req.VersionID] = stream.Version{Items: items, Updated: stream.Timestamp(time.Now())}
	work.Products[req.ProductID] = prod

	res := &Result{}
	res.record(req.ContentID, req.ProductID, req.VersionID, ActionAdded, detail)
	res.Changed = sortedContentIDs(staged)

	if !commit {
		return res, nil
	}

	logger.Info("Creating version", logger.Ctx{"product": req.ProductID, "version": req.VersionID, "items": len(req.Items)})

	err := e.apply(staged, res)
	if err != nil {
		return nil, err
	}

	return res, nil
}
