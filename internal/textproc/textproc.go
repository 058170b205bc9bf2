// Package textproc prepares scraped pages for embedding and formats
// generated text for the stream overlay.
package textproc

import (
	"fmt"
	"regexp"
	"strings"
)

var inlineImageRe = regexp.MustCompile(`data:image/[a-zA-Z]+;base64,[^\s]+`)

// FilterContent strips inline base64 image payloads from HTML.
func FilterContent(html string) string {
	return inlineImageRe.ReplaceAllString(html, "")
}

// CompileSplitter compiles a heading splitter pattern in multiline mode.
func CompileSplitter(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid splitter pattern %q: %w", pattern, err)
	}
	return re, nil
}

// SplitMarkdownChunks splits a markdown document on splitter and sizes the
// sections for embedding. Sections over maxWords are cut into maxWords windows
// and adjacent windows are merged until they reach minWords. Short sections
// are appended to the previous chunk. Blank sections are dropped.
func SplitMarkdownChunks(doc string, splitter *regexp.Regexp, maxWords, minWords int) []string {
	if maxWords <= 0 {
		return nil
	}

	var sections []string
	if splitter == nil {
		sections = []string{doc}
	} else {
		sections = splitter.Split(doc, -1)
	}

	var chunks []string
	for _, section := range sections {
		words := strings.Fields(section)
		if len(words) == 0 {
			continue
		}

		if len(words) > maxWords {
			chunks = append(chunks, windowWords(words, maxWords, minWords)...)
			continue
		}

		if minWords > 0 && len(words) < minWords && len(chunks) > 0 {
			chunks[len(chunks)-1] += " " + section
			continue
		}
		chunks = append(chunks, section)
	}
	return chunks
}

func windowWords(words []string, maxWords, minWords int) []string {
	var out []string
	var buf []string
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		buf = append(buf, words[start:end]...)
		if len(buf) >= minWords {
			out = append(out, strings.Join(buf, " "))
			buf = nil
		}
	}
	if len(buf) > 0 {
		out = append(out, strings.Join(buf, " "))
	}
	return out
}

// FilterKeyMessages drops blank lines, trims the rest and joins them with
// spaces blanks, with the same gap in front so the overlay can scroll it.
func FilterKeyMessages(msg string, spaces int) string {
	if spaces < 0 {
		spaces = 0
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(msg), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	gap := strings.Repeat(" ", spaces)
	return gap + strings.Join(lines, gap)
}

// SplitHalves splits text at its rune midpoint.
func SplitHalves(text string) (string, string) {
	r := []rune(text)
	mid := len(r) / 2
	return string(r[:mid]), string(r[mid:])
}
