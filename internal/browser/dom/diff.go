// internal/browser/dom/diff.go
package dom

// MutationBatch summarises the structural changes between two observations of
// the same browsing context.
type MutationBatch struct {
	// Added are elements present in the newer observation only.
	Added []*Element
	// Removed are keys of elements present in the older observation only.
	Removed []NodeKey
}

// Empty reports whether nothing changed.
func (b MutationBatch) Empty() bool {
	return len(b.Added) == 0 && len(b.Removed) == 0
}

// KeySet is the set of element keys seen in one observation.
type KeySet map[NodeKey]struct{}

// KeySet captures the keys of every connected element.
func (d *Document) KeySet() KeySet {
	set := make(KeySet)
	for _, k := range d.Keys() {
		set[k] = struct{}{}
	}
	return set
}

// Diff compares a previous observation with the current document. Live pages
// produce a fresh Document per snapshot while static documents are mutated in
// place, so the previous state is passed as a key set rather than a document.
// A nil prev treats every element as added.
func Diff(prev KeySet, cur *Document) MutationBatch {
	var batch MutationBatch
	seen := make(KeySet)
	for _, el := range cur.Elements() {
		seen[el.Key()] = struct{}{}
		if _, ok := prev[el.Key()]; !ok {
			batch.Added = append(batch.Added, el)
		}
	}
	for k := range prev {
		if _, ok := seen[k]; !ok {
			batch.Removed = append(batch.Removed, k)
		}
	}
	return batch
}
