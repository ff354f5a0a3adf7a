package domain

// BundleItem is one passage inside a context bundle.
type BundleItem struct {
	// Text is the passage content.
	Text string

	// Kind is the source the passage came from.
	Kind SourceKind

	// Provenance identifies where the passage originated: a chunk ID for
	// indexed content, a URL or title for live snippets.
	Provenance string

	// Score is the relevance score. Vector results carry the similarity
	// score; live snippets carry zero and rank after vector content.
	Score float64

	// Live is true for snippets fetched live rather than retrieved from
	// the index.
	Live bool
}

// ContextBundle is the merged, size-bounded set of retrieved passages passed
// to answer generation. It is built fresh per question and never persisted.
type ContextBundle struct {
	// Items are ordered: vector results by score descending, then live
	// snippets grouped by source in classification order.
	Items []BundleItem

	// Degraded is true when every data path failed and the bundle is
	// empty. The caller must handle this gracefully.
	Degraded bool

	// Failures records per-source soft failures for observability.
	// A failed source is omitted from Items, never an error.
	Failures map[SourceKind]string
}

// TotalChars returns the combined length of all item texts.
func (b *ContextBundle) TotalChars() int {
	total := 0
	for _, item := range b.Items {
		total += len(item.Text)
	}
	return total
}

// Empty reports whether the bundle carries no content.
func (b *ContextBundle) Empty() bool {
	return len(b.Items) == 0
}
