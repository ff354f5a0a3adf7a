package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

func TestSplitEmptyBody(t *testing.T) {
	c := New()
	chunks := c.Split(&domain.Document{ID: "doc-1"})
	assert.Nil(t, chunks)
}

func TestSplitSmallBodySingleChunk(t *testing.T) {
	c := New(WithChunkSize(1000), WithOverlap(100))
	doc := &domain.Document{ID: "doc-1", Kind: domain.SourceNotion, Body: "short body"}

	chunks := c.Split(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, "short body", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(doc.Body), chunks[0].End)
	assert.Equal(t, domain.ChunkID("doc-1", 0), chunks[0].ID)
	assert.Equal(t, domain.SourceNotion, chunks[0].Kind)
}

func TestSplitWindowsAndTailTruncation(t *testing.T) {
	// 5000 uniform chars, size 1000, overlap 100: stride is 900 and the
	// tail is emitted short.
	c := New(WithChunkSize(1000), WithOverlap(100))
	doc := &domain.Document{ID: "doc-1", Body: strings.Repeat("x", 5000)}

	chunks := c.Split(doc)

	want := [][2]int{
		{0, 1000}, {900, 1900}, {1800, 2800}, {2700, 3700}, {3600, 4600}, {4500, 5000},
	}
	require.Len(t, chunks, len(want))
	for i, w := range want {
		assert.Equal(t, w[0], chunks[i].Start, "chunk %d start", i)
		assert.Equal(t, w[1], chunks[i].End, "chunk %d end", i)
		assert.Equal(t, i, chunks[i].Index)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := New(WithChunkSize(500), WithOverlap(50))
	body := strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 60)
	doc := &domain.Document{ID: "doc-2", Body: body}

	first := c.Split(doc)
	second := c.Split(doc)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	// A paragraph break in the back half of the first window should end
	// the chunk there instead of at the hard limit.
	para1 := strings.Repeat("a", 700)
	para2 := strings.Repeat("b", 700)
	doc := &domain.Document{ID: "doc-3", Body: para1 + "\n\n" + para2}

	c := New(WithChunkSize(1000), WithOverlap(100))
	chunks := c.Split(doc)

	require.GreaterOrEqual(t, len(chunks), 2)
	// First window [0,1000) contains the break at 700..702.
	assert.Equal(t, 702, chunks[0].End)
	assert.Equal(t, 602, chunks[1].Start)
}

func TestSplitCoversBody(t *testing.T) {
	c := New(WithChunkSize(300), WithOverlap(30))
	doc := &domain.Document{ID: "doc-4", Body: strings.Repeat("z", 2500)}

	chunks := c.Split(doc)

	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(doc.Body), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		// Consecutive windows overlap: no gaps.
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End)
		assert.Greater(t, chunks[i].End, chunks[i-1].End)
	}
}

func TestSplitMultibyteBodyKeepsRunesWhole(t *testing.T) {
	// 3-byte runes with no newlines force the hard-cut fallback; every
	// window must still begin and end on a rune boundary.
	c := New(WithChunkSize(1000), WithOverlap(100))
	doc := &domain.Document{ID: "doc-6", Body: strings.Repeat("世", 1000)}

	chunks := c.Split(doc)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Text), "chunk %d is not valid UTF-8", i)
	}
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(doc.Body), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End)
		assert.Greater(t, chunks[i].End, chunks[i-1].End)
	}
}

func TestSplitMixedWidthDeterministic(t *testing.T) {
	c := New(WithChunkSize(300), WithOverlap(30))
	body := strings.Repeat("résumé naïve 世界 ", 200)
	doc := &domain.Document{ID: "doc-7", Body: body}

	first := c.Split(doc)
	second := c.Split(doc)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, utf8.ValidString(first[i].Text), "chunk %d", i)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestNewClampsExcessiveOverlap(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(90))
	doc := &domain.Document{ID: "doc-5", Body: strings.Repeat("y", 1000)}

	chunks := c.Split(doc)

	// Overlap was clamped, so the split terminates and makes progress.
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
}
