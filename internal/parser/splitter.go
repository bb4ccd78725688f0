package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 200  // characters
)

// paragraph, line, word, then an arbitrary cut
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts plain text into overlapping chunks of at most chunkSize
// characters, preferring paragraph and line boundaries over mid-word cuts
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	// an overlap that swallows the chunk falls back to a fifth of it
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize * defaultChunkOverlap / defaultChunkSize
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		),
	}
}

func (s *Splitter) ChunkSize() int    { return s.chunkSize }
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split returns the ordered chunks of text, empty chunks are dropped
func (s *Splitter) Split(text string) ([]string, error) {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// Merge rebuilds the text behind chunks by dropping, from every chunk after
// the first, the prefix it repeats from the end of the previous one.
// Whitespace between chunks is normalised to a single space.
func Merge(chunks []string) string {
	var content strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			content.WriteString(chunk)
			continue
		}
		rest := strings.TrimLeft(chunk[overlapLen(chunks[i-1], chunk):], " \t\n")
		if rest == "" {
			continue
		}
		content.WriteString(" ")
		content.WriteString(rest)
	}
	return content.String()
}

// overlapLen is the length of the longest prefix of next that ends prev,
// cut on whitespace boundaries on both sides
func overlapLen(prev, next string) int {
	limit := min(len(prev), len(next))
	for k := limit; k > 0; k-- {
		if !strings.HasSuffix(prev, next[:k]) {
			continue
		}
		startsWord := k == len(prev) || isSpace(prev[len(prev)-k-1])
		endsWord := k == len(next) || isSpace(next[k])
		if startsWord && endsWord {
			return k
		}
	}
	return 0
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
