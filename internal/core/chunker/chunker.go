// Package chunker splits extracted text into overlapping, token-bounded
// chunks. A "token" here is an approximation (0.75 words per configured
// token), not a real tokenizer count; the window math is documented as
// approximate on purpose.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doclyn/doclyn/internal/models"
)

const (
	// DefaultChunkSize is the default chunk budget in approximate tokens.
	DefaultChunkSize = 1000
	// DefaultOverlap is the default overlap between consecutive chunks, in
	// approximate tokens.
	DefaultOverlap = 200
)

// ErrInvalidChunking is returned when the configured overlap is at least as
// large as the chunk window, which would make the slide step non-positive.
// This is a configuration error, never a runtime hang.
var ErrInvalidChunking = errors.New("chunk overlap must be smaller than the chunk window")

// Options tunes one chunking run.
//
// ChunkSize and Overlap are in approximate tokens; zero values take the
// defaults, and a negative Overlap requests no overlap at all. Type,
// Confidence, Section and Language are stamped onto every emitted chunk's
// metadata.
type Options struct {
	ChunkSize  int
	Overlap    int
	Type       string
	Confidence float64
	Section    string
	Language   string
}

func (o *Options) defaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap == 0 {
		o.Overlap = DefaultOverlap
	} else if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Type == "" {
		o.Type = "text"
	}
	if o.Confidence == 0 {
		o.Confidence = 1.0
	}
}

// Chunk splits text into overlapping word windows.
//
// The text is split on whitespace into a word sequence; the window holds
// floor(ChunkSize*0.75) words and advances by window minus Overlap words per
// step. StartIndex/EndIndex are word offsets into that sequence, and Tokens
// is the window's word count. Chunks whose trimmed content is empty are
// dropped (only possible at the trailing boundary).
//
// Chunk IDs are random UUIDs: the source scheme (fileName + ordinal) is only
// unique within one extraction run, and repeated uploads of same-named files
// would collide in storage. The deterministic ordinal survives as Position.
func Chunk(text, sourceID string, opts Options) ([]models.ContentChunk, error) {
	opts.defaults()

	wordsPerChunk := opts.ChunkSize * 3 / 4
	if wordsPerChunk < 1 {
		wordsPerChunk = 1
	}
	step := wordsPerChunk - opts.Overlap
	if step <= 0 {
		return nil, fmt.Errorf("%w: window %d words, overlap %d", ErrInvalidChunking, wordsPerChunk, opts.Overlap)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	var chunks []models.ContentChunk
	for start := 0; start < len(words); start += step {
		end := start + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}

		content := strings.Join(words[start:end], " ")
		if strings.TrimSpace(content) == "" {
			continue
		}

		chunks = append(chunks, models.ContentChunk{
			ID:         uuid.NewString(),
			DocumentID: sourceID,
			Position:   len(chunks),
			Content:    content,
			StartIndex: start,
			EndIndex:   end,
			Tokens:     end - start,
			Metadata: models.ChunkMetadata{
				Type:       opts.Type,
				Confidence: opts.Confidence,
				Section:    opts.Section,
				Language:   opts.Language,
			},
			CreatedAt: time.Now(),
		})
	}
	return chunks, nil
}

// ChunkLines groups lines into fixed-size blocks of groupSize lines each.
// Used by the spreadsheet path, where row boundaries matter more than token
// density. StartIndex/EndIndex are line offsets; Tokens is the word count of
// the group.
func ChunkLines(lines []string, sourceID string, groupSize int, opts Options) []models.ContentChunk {
	opts.defaults()
	if groupSize < 1 {
		groupSize = 1
	}

	var chunks []models.ContentChunk
	for start := 0; start < len(lines); start += groupSize {
		end := start + groupSize
		if end > len(lines) {
			end = len(lines)
		}

		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}

		chunks = append(chunks, models.ContentChunk{
			ID:         uuid.NewString(),
			DocumentID: sourceID,
			Position:   len(chunks),
			Content:    content,
			StartIndex: start,
			EndIndex:   end,
			Tokens:     len(strings.Fields(content)),
			Metadata: models.ChunkMetadata{
				Type:       opts.Type,
				Confidence: opts.Confidence,
				Section:    opts.Section,
				Language:   opts.Language,
			},
			CreatedAt: time.Now(),
		})
	}
	return chunks
}
