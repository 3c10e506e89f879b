package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize bounds a chunk in characters.
const DefaultMaxChunkSize = 4000

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// splitParagraphs returns the non-blank, trimmed paragraphs of text.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := paragraphBreak.Split(text, -1)
	paras := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// SplitChunks packs the paragraphs of text into chunks of at most maxSize
// characters, joining paragraphs with a blank line. A paragraph longer than
// maxSize is cut into maxSize pieces without regard for word boundaries.
// maxSize <= 0 uses DefaultMaxChunkSize.
func SplitChunks(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		n := utf8.RuneCountInString(para)
		if n > maxSize {
			flush()
			chunks = append(chunks, hardSplit(para, maxSize)...)
			continue
		}
		if curLen > 0 && curLen+2+n > maxSize {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += n
	}
	flush()
	return chunks
}

// hardSplit cuts s into pieces of at most size runes, dropping pieces that
// are only whitespace.
func hardSplit(s string, size int) []string {
	runes := []rune(s)
	pieces := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) == "" {
			continue
		}
		pieces = append(pieces, piece)
	}
	return pieces
}
