package web_ingest

import (
	"fmt"
	"unicode"

	"github.com/mohammad-safakhou/pagechat/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping windows measured in runes.
type Chunker struct {
	Size    int
	Overlap int
}

func (c Chunker) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Size, c.Overlap)
	}
	return nil
}

// Chunk splits text into windows of at most Size runes. A window ends after the last
// paragraph break, line break or space in its second half, or is cut hard. Each chunk
// after the first starts exactly Overlap runes before the end of its predecessor, so
// dropping the first Overlap runes of every later chunk reassembles the input.
// Invalid settings yield no chunks.
func (c Chunker) Chunk(text, source string) []models.Chunk {
	if c.Validate() != nil {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []models.Chunk
	for start := 0; ; {
		end := start + c.Size
		if end >= n {
			end = n
		} else {
			lo := start + c.Size/2
			if floor := start + c.Overlap + 1; lo < floor {
				lo = floor
			}
			end = boundary(runes, lo, end)
		}
		chunks = append(chunks, models.Chunk{
			Text:   string(runes[start:end]),
			Source: source,
			Index:  len(chunks),
			Offset: start,
		})
		if end == n {
			return chunks
		}
		start = end - c.Overlap
	}
}

// boundary returns the preferred cut in (lo, hi]: just after the last paragraph
// break, else the last line break, else the last whitespace. hi means a hard cut.
func boundary(runes []rune, lo, hi int) int {
	for j := hi - 1; j > lo; j-- {
		if runes[j] == '\n' && runes[j-1] == '\n' {
			return j + 1
		}
	}
	for j := hi - 1; j >= lo; j-- {
		if runes[j] == '\n' {
			return j + 1
		}
	}
	for j := hi - 1; j >= lo; j-- {
		if unicode.IsSpace(runes[j]) {
			return j + 1
		}
	}
	return hi
}
