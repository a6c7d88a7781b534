package ingestion

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numberedWords builds n distinct six-character tokens ("w0000 w0001 ...").
func numberedWords(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "w%04d ", i)
	}
	return sb.String()
}

func TestSplitTwentyFourHundredCharacters(t *testing.T) {
	text := numberedWords(400)
	require.Len(t, text, 2400)

	chunks := NewRecursiveSplitter().Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{995, 995, 803}, []int{len(chunks[0]), len(chunks[1]), len(chunks[2])})
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), defaultChunkSize)
	}

	assert.True(t, strings.HasPrefix(chunks[0], "w0000 "))
	assert.True(t, strings.HasPrefix(chunks[1], "w0133 "))
	assert.True(t, strings.HasSuffix(chunks[2], "w0399"))

	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-defaultChunkOverlap:]
		head := chunks[i+1][:150]
		assert.Contains(t, tail, head, "chunk %d should open with the tail of chunk %d", i+1, i)
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("First paragraph line one.\nLine two follows here.\n\n", 60)
	splitter := NewRecursiveSplitter()

	assert.Equal(t, splitter.Split(text), splitter.Split(text))
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	para := strings.TrimSpace(numberedWords(100))
	text := para + "\n\n" + para + "\n\n" + para

	chunks := NewRecursiveSplitter().Split(text)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.Equal(t, para, chunk)
	}
}

func TestSplitFallsBackToCharacters(t *testing.T) {
	chunks := NewRecursiveSplitter().Split(strings.Repeat("x", 2500))

	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, len(chunks[0]))
	assert.Equal(t, 1000, len(chunks[1]))
	assert.Equal(t, 900, len(chunks[2]))
}

func TestSplitShortAndEmptyText(t *testing.T) {
	splitter := NewRecursiveSplitter()

	assert.Equal(t, []string{"hello world"}, splitter.Split("  hello world \n"))
	assert.Empty(t, splitter.Split(""))
	assert.Empty(t, splitter.Split("\n\n   \n\n"))
}

func TestSplitCountsRunes(t *testing.T) {
	splitter := RecursiveSplitter{ChunkSize: 10, ChunkOverlap: 0, Separators: DefaultSeparators}

	chunks := splitter.Split(strings.Repeat("é", 25))

	require.Len(t, chunks, 3)
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 5, utf8.RuneCountInString(chunks[2]))
}

func TestSplitKeepingSeparator(t *testing.T) {
	assert.Equal(t, []string{"a", " b", " c"}, splitKeepingSeparator("a b c", " "))
	assert.Equal(t, []string{"\n\nb"}, splitKeepingSeparator("\n\nb", "\n\n"))
	assert.Equal(t, []string{"a", "b"}, splitKeepingSeparator("ab", ""))
}
