package processors

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/chunker"
	"github.com/doclyn/doclyn/internal/models"
)

// TextProcessor handles plain-text formats: the bytes are the content.
type TextProcessor struct{}

var _ core.FileProcessor = (*TextProcessor)(nil)

func NewTextProcessor() *TextProcessor { return &TextProcessor{} }

func (p *TextProcessor) Type() string { return "text" }

func (p *TextProcessor) Extensions() []string {
	return []string{"txt", "md", "markdown", "log"}
}

func (p *TextProcessor) MimeTypes() []string {
	return []string{"text/plain", "text/markdown"}
}

func (p *TextProcessor) Icon() string { return "file-text" }

func (p *TextProcessor) Extract(ctx context.Context, data []byte, fileName string, opts core.ExtractOptions) (*models.ProcessedContent, error) {
	if !utf8.Valid(data) {
		return nil, models.NewExtractionFailed("text file is not valid UTF-8", nil)
	}

	text := string(data)
	chunks, err := chunker.Chunk(text, fileName, chunker.Options{
		ChunkSize: opts.ChunkSize,
		Overlap:   opts.ChunkOverlap,
		Type:      "text",
	})
	if err != nil {
		return nil, models.NewExtractionFailed("chunking failed", err)
	}

	return &models.ProcessedContent{
		Text:   text,
		Chunks: chunks,
		Metadata: models.FileMetadata{
			FileName:    fileName,
			FileType:    p.Type(),
			MimeType:    "text/plain",
			SizeBytes:   len(data),
			ExtractedAt: time.Now(),
		},
	}, nil
}
