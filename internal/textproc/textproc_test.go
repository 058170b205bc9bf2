package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int, w string) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

func TestFilterContent(t *testing.T) {
	in := `<img src="data:image/png;base64,iVBORw0KGgo="> <p>kept</p>`
	assert.Equal(t, `<img src=" <p>kept</p>`, FilterContent(in))
	assert.Equal(t, "plain", FilterContent("plain"))
}

func TestSplitMarkdownChunks_Headings(t *testing.T) {
	re, err := CompileSplitter(`^#+\s`)
	require.NoError(t, err)

	doc := "# One\n" + words(5, "a") + "\n## Two\n" + words(5, "b")
	got := SplitMarkdownChunks(doc, re, 500, 0)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "One")
	assert.Contains(t, got[1], "Two")
}

func TestSplitMarkdownChunks_ShortSectionMergesIntoPrevious(t *testing.T) {
	re, _ := CompileSplitter(`^#+\s`)
	doc := "# Long\n" + words(120, "a") + "\n# Short\n" + words(3, "b")
	got := SplitMarkdownChunks(doc, re, 500, 100)
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(got[0]), "b b b"))
}

func TestSplitMarkdownChunks_FirstShortSectionKept(t *testing.T) {
	re, _ := CompileSplitter(`^#+\s`)
	got := SplitMarkdownChunks("# Tiny\nhello", re, 500, 100)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "hello")
}

func TestSplitMarkdownChunks_LongSectionWindows(t *testing.T) {
	doc := words(25, "x")
	got := SplitMarkdownChunks(doc, nil, 10, 0)
	require.Len(t, got, 3)
	assert.Len(t, strings.Fields(got[0]), 10)
	assert.Len(t, strings.Fields(got[2]), 5)
}

func TestSplitMarkdownChunks_WindowsMergeToMinWords(t *testing.T) {
	doc := words(25, "x")
	got := SplitMarkdownChunks(doc, nil, 10, 15)
	// 10 -> buffer, +10 = 20 flush, 5 trailing kept.
	require.Len(t, got, 2)
	assert.Len(t, strings.Fields(got[0]), 20)
	assert.Len(t, strings.Fields(got[1]), 5)
}

func TestSplitMarkdownChunks_BlankDocument(t *testing.T) {
	re, _ := CompileSplitter(`^#+\s`)
	assert.Empty(t, SplitMarkdownChunks("  \n\n", re, 500, 100))
	assert.Empty(t, SplitMarkdownChunks("text", re, 0, 0))
}

func TestCompileSplitter_Invalid(t *testing.T) {
	_, err := CompileSplitter("(")
	assert.Error(t, err)
}

func TestFilterKeyMessages(t *testing.T) {
	msg := "\n 1. Stay indoors \n\n2. Charge phones\n   \n"
	assert.Equal(t, "   1. Stay indoors   2. Charge phones", FilterKeyMessages(msg, 3))
	assert.Equal(t, "", FilterKeyMessages("", 0))
}

func TestSplitHalves(t *testing.T) {
	a, b := SplitHalves("abcde")
	assert.Equal(t, "ab", a)
	assert.Equal(t, "cde", b)

	a, b = SplitHalves("héllo!")
	assert.Equal(t, "hél", a)
	assert.Equal(t, "lo!", b)
}
