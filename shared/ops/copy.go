package ops

import (
	"time"

	"github.com/canonical/bootstream/shared/filter"
	"github.com/canonical/bootstream/shared/logger"
	"github.com/canonical/bootstream/shared/stream"
)

// CopyVersion inserts a structural copy of fromVersion under toVersion for
// every product matching the filters. Products already holding toVersion
// are skipped and recorded, never overwritten; products lacking
// fromVersion are skipped and recorded. Artifact bytes are shared, not
// duplicated: the copied items keep their paths, which is safe because
// published artifact files are immutable.
func (e *Engine) CopyVersion(fromVersion string, toVersion string, filters *filter.ClauseSet, commit bool) (*Result, error) {
	now := stream.Timestamp(time.Now())
	res := &Result{}
	staged := map[string]*stream.Products{}

	for _, cid := range e.Stream.ContentIDs() {
		doc := e.Stream.Products[cid]

		for _, pid := range doc.ProductIDs() {
			prod := doc.Products[pid]
			if !filters.Match(prod.Attributes) {
				continue
			}

			src, ok := prod.Versions[fromVersion]
			if !ok {
				res.record(cid, pid, toVersion, ActionSkippedAbsent, "no version "+fromVersion)
				continue
			}

			_, ok = prod.Versions[toVersion]
			if ok {
				res.record(cid, pid, toVersion, ActionSkippedExists, "already present")
				continue
			}

			cp := src.Copy()
			cp.Updated = now

			work := stagedFor(staged, doc)
			work.Products[pid].Versions[toVersion] = cp
			res.record(cid, pid, toVersion, ActionAdded, "copy of "+fromVersion)
		}
	}

	res.Changed = sortedContentIDs(staged)

	if !commit {
		return res, nil
	}

	logger.Info("Copying version", logger.Ctx{"from": fromVersion, "to": toVersion, "products": res.Mutations()})

	err := e.apply(staged, res)
	if err != nil {
		return nil, err
	}

	return res, nil
}
