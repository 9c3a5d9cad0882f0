// Package ops implements the transactional batch mutations over a stream:
// create-version, copy-version and remove-version, plus the index and
// signature synchronization that follows every successful mutation.
//
// Every operation has the same shape: validate inputs, compute a complete
// new in-memory state for every affected product file, then either return
// the plan (dry-run) or persist and re-sign exactly the files that changed.
// A planning failure aborts with nothing written.
package ops

import (
	"fmt"

	"github.com/canonical/bootstream/shared/sign"
	"github.com/canonical/bootstream/shared/stream"
)

// Decision actions recorded while planning.
const (
	ActionAdded         = "added"
	ActionRemoved       = "removed"
	ActionSkippedExists = "skipped-exists"
	ActionSkippedAbsent = "skipped-absent"
)

// Decision is one per-product, per-version planning outcome.
type Decision struct {
	ContentID string
	ProductID string
	VersionID string
	Action    string
	Detail    string
}

// Result is what every mutating entry point returns: the full decision
// list, the product files the plan modified and, in commit mode, the
// documents actually rewritten.
type Result struct {
	Decisions []Decision
	Changed   []string
	Written   []string
}

func (r *Result) record(cid string, pid string, vid string, action string, detail string) {
	r.Decisions = append(r.Decisions, Decision{
		ContentID: cid,
		ProductID: pid,
		VersionID: vid,
		Action:    action,
		Detail:    detail,
	})
}

// Mutations returns the number of decisions that actually change the tree.
func (r *Result) Mutations() int {
	count := 0
	for _, d := range r.Decisions {
		if d.Action == ActionAdded || d.Action == ActionRemoved {
			count++
		}
	}

	return count
}

// Rows renders the decision list for table output.
func (r *Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		rows = append(rows, []string{d.ProductID, d.VersionID, d.Action, d.Detail})
	}

	return rows
}

// UnknownProductError means create-version targeted a product id that the
// catalog doesn't declare and no attributes were supplied to create it.
type UnknownProductError struct {
	ProductID string
}

func (e UnknownProductError) Error() string {
	return fmt.Sprintf("Unknown product %q", e.ProductID)
}

// Engine runs version operations against one loaded stream. Signer may be
// nil, in which case signature generation is skipped (--no-sign).
type Engine struct {
	Stream *stream.Stream
	Signer sign.Signer
}

// NewEngine returns an engine over the given stream.
func NewEngine(s *stream.Stream, signer sign.Signer) *Engine {
	return &Engine{Stream: s, Signer: signer}
}

// stagedFor returns the working copy of a product file, deep-copying it on
// first touch so an aborted plan never leaks into the loaded stream.
func stagedFor(staged map[string]*stream.Products, doc *stream.Products) *stream.Products {
	cp, ok := staged[doc.ContentID]
	if !ok {
		cp = doc.Copy()
		staged[doc.ContentID] = cp
	}

	return cp
}
