// Package chunker splits documents into bounded, overlap-aware text segments
// for embedding. Splitting is deterministic: re-chunking an unchanged
// document yields byte-identical chunks with the same IDs, which is what
// makes re-indexing idempotent.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of characters consecutive chunks
// share.
const DefaultOverlap = 200

// Chunker splits document bodies into chunks.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Overlap must leave room for forward progress.
	if c.overlap >= c.size/2 {
		c.overlap = c.size / 4
	}
	return c
}

// Split chunks a document body. Each chunk covers the half-open character
// window [Start, End) of the body; consecutive chunks overlap by the
// configured amount, and windows prefer to end on a paragraph or line
// boundary when one falls in the window's back half. A trailing segment
// shorter than the chunk size is emitted as-is.
func (c *Chunker) Split(doc *domain.Document) []domain.Chunk {
	body := doc.Body
	if body == "" {
		return nil
	}

	n := len(body)
	chunks := make([]domain.Chunk, 0, n/(c.size-c.overlap)+1)

	start := 0
	index := 0
	for {
		if n-start <= c.size {
			chunks = append(chunks, c.chunk(doc, index, start, n))
			break
		}

		end := c.cutPoint(body, start, start+c.size)
		chunks = append(chunks, c.chunk(doc, index, start, end))
		index++
		start = runeStart(body, end-c.overlap)
	}

	return chunks
}

// chunk builds one chunk over body[start:end].
func (c *Chunker) chunk(doc *domain.Document, index, start, end int) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(doc.ID, index),
		DocumentID: doc.ID,
		Kind:       doc.Kind,
		Text:       doc.Body[start:end],
		Index:      index,
		Start:      start,
		End:        end,
	}
}

// cutPoint chooses where the window [start, limit) should end. It prefers
// the last paragraph break in the back half of the window, then the last
// line break, and falls back to a hard cut at the limit, backed off to a
// rune boundary so no chunk tears a multibyte character. Restricting
// boundaries to the back half guarantees forward progress regardless of
// where breaks fall.
func (c *Chunker) cutPoint(body string, start, limit int) int {
	half := start + c.size/2
	window := body[half:limit]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return half + i + 2
	}
	if i := strings.LastIndexByte(window, '\n'); i >= 0 {
		return half + i + 1
	}
	return runeStart(body, limit)
}

// runeStart backs i off to the nearest rune boundary at or before it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
