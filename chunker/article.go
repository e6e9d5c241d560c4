package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ChunkingError reports that the input text could not be chunked
type ChunkingError struct {
	Reason string
}

func (e *ChunkingError) Error() string {
	return "chunking failed: " + e.Reason
}

// Chunk is one segment of a legal or contractual text. ArticleNumber is nil
// for preamble text that precedes the first article heading.
type Chunk struct {
	ArticleNumber *int
	ChunkIndex    int
	Content       string
	Metadata      map[string]interface{}
}

const (
	minTextLen    = 10
	defaultWindow = 1200
	defaultLap    = 200
	// splits prefer a sentence terminator after this share of the window
	boundaryShare = 0.7
)

// articleHeading matches Korean article headings like "제3조" or "제 12 조"
// at line start.
var articleHeading = regexp.MustCompile(`(?m)^\s*제\s*(\d+)\s*조`)

// ArticleChunker splits Korean legal text at "제N조" article headings, then
// applies a sliding length window inside each article. Retrieval quality
// depends on chunks aligning with article boundaries; fixed-size windows
// break citations mid-article.
type ArticleChunker struct {
	maxWindow int
	overlap   int
}

// NewArticleChunker creates a chunker with the given window and overlap,
// falling back to defaults for non-positive values.
func NewArticleChunker(maxWindow, overlap int) *ArticleChunker {
	if maxWindow <= 0 {
		maxWindow = defaultWindow
	}
	if overlap < 0 || overlap >= maxWindow {
		overlap = defaultLap
	}
	return &ArticleChunker{maxWindow: maxWindow, overlap: overlap}
}

type section struct {
	articleNumber *int
	text          string
}

// Section is one article-aligned region of a text
type Section struct {
	ArticleNumber *int
	Text          string
}

// Sections returns the article-aligned regions of text without windowing.
// Useful for callers that need clause boundaries rather than retrieval
// chunks.
func Sections(text string) []Section {
	secs := splitArticles(text)
	out := make([]Section, len(secs))
	for i, s := range secs {
		out[i] = Section{ArticleNumber: s.articleNumber, Text: s.text}
	}
	return out
}

// Chunk splits text into article-aligned chunks. Metadata from baseMeta is
// copied onto every chunk. Text shorter than 10 characters, or text whose
// chunks all clean to empty, fails with ChunkingError.
func (c *ArticleChunker) Chunk(text string, baseMeta map[string]interface{}) ([]Chunk, error) {
	if len([]rune(strings.TrimSpace(text))) < minTextLen {
		return nil, &ChunkingError{Reason: fmt.Sprintf("text too short (%d chars)", len([]rune(text)))}
	}

	sections := splitArticles(text)

	var chunks []Chunk
	for _, sec := range sections {
		for _, piece := range c.window(sec.text) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			meta := make(map[string]interface{}, len(baseMeta))
			for k, v := range baseMeta {
				meta[k] = v
			}
			chunks = append(chunks, Chunk{
				ArticleNumber: sec.articleNumber,
				Content:       piece,
				Metadata:      meta,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, &ChunkingError{Reason: "all chunks empty after splitting"}
	}

	// reindex contiguous from 0
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks, nil
}

// splitArticles cuts the text at article headings. Text before the first
// heading becomes the preamble; text with no headings at all becomes one
// synthetic "전체" section.
func splitArticles(text string) []section {
	locs := articleHeading.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []section{{articleNumber: nil, text: "전체\n" + text}}
	}

	var sections []section
	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		sections = append(sections, section{articleNumber: nil, text: pre})
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		num, err := strconv.Atoi(text[loc[2]:loc[3]])
		body := strings.TrimSpace(text[loc[0]:end])
		if body == "" {
			continue
		}
		sec := section{text: body}
		if err == nil {
			n := num
			sec.articleNumber = &n
		}
		sections = append(sections, sec)
	}
	return sections
}

// window applies the sliding-window splitter to one section, preferring to
// cut at the last sentence terminator past 70% of the window.
func (c *ArticleChunker) window(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.maxWindow {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + c.maxWindow
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		cut := end
		floor := start + int(float64(c.maxWindow)*boundaryShare)
		for i := end - 1; i > floor; i-- {
			if runes[i] == '.' || runes[i] == '\n' {
				cut = i + 1
				break
			}
		}

		pieces = append(pieces, string(runes[start:cut]))
		next := cut - c.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return pieces
}
