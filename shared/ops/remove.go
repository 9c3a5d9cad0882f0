package ops

import (
	"github.com/canonical/bootstream/shared/filter"
	"github.com/canonical/bootstream/shared/logger"
	"github.com/canonical/bootstream/shared/stream"
)

// RemoveVersion deletes the named version from every product matching the
// filters. Products without it are skipped and recorded. Removing a
// product's last version leaves an empty version map; product identities
// are never deleted here.
func (e *Engine) RemoveVersion(versionID string, filters *filter.ClauseSet, commit bool) (*Result, error) {
	res := &Result{}
	staged := map[string]*stream.Products{}

	for _, cid := range e.Stream.ContentIDs() {
		doc := e.Stream.Products[cid]

		for _, pid := range doc.ProductIDs() {
			prod := doc.Products[pid]
			if !filters.Match(prod.Attributes) {
				continue
			}

			_, ok := prod.Versions[versionID]
			if !ok {
				res.record(cid, pid, versionID, ActionSkippedAbsent, "no version "+versionID)
				continue
			}

			work := stagedFor(staged, doc)
			delete(work.Products[pid].Versions, versionID)
			res.record(cid, pid, versionID, ActionRemoved, "")
		}
	}

	res.Changed = sortedContentIDs(staged)

	if !commit {
		return res, nil
	}

	logger.Info("Removing version", logger.Ctx{"version": versionID, "products": res.Mutations()})

	err := e.apply(staged, res)
	if err != nil {
		return nil, err
	}

	return res, nil
}
