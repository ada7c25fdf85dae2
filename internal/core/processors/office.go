package processors

import (
	"bytes"
	"context"
	"strings"
	"time"

	"code.sajari.com/docconv"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/chunker"
	"github.com/doclyn/doclyn/internal/models"
)

// officeMimeByExt maps office extensions to the MIME types docconv dispatches on.
var officeMimeByExt = map[string]string{
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"odt":  "application/vnd.oasis.opendocument.text",
	"rtf":  "application/rtf",
}

// OfficeProcessor handles word-processing and presentation formats through
// docconv.
type OfficeProcessor struct{}

var _ core.FileProcessor = (*OfficeProcessor)(nil)

func NewOfficeProcessor() *OfficeProcessor { return &OfficeProcessor{} }

func (p *OfficeProcessor) Type() string { return "document" }

func (p *OfficeProcessor) Extensions() []string {
	return []string{"docx", "doc", "pptx", "odt", "rtf"}
}

func (p *OfficeProcessor) MimeTypes() []string {
	return []string{
		officeMimeByExt["docx"],
		officeMimeByExt["doc"],
		officeMimeByExt["pptx"],
		officeMimeByExt["odt"],
		officeMimeByExt["rtf"],
	}
}

func (p *OfficeProcessor) Icon() string { return "file-doc" }

func (p *OfficeProcessor) Extract(ctx context.Context, data []byte, fileName string, opts core.ExtractOptions) (*models.ProcessedContent, error) {
	mimeType, ok := officeMimeByExt[normalizeExt(fileName)]
	if !ok {
		mimeType = officeMimeByExt["docx"]
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return nil, models.NewExtractionFailed("document conversion failed", err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, models.NewExtractionFailed("document contains no extractable text", nil)
	}

	chunks, err := chunker.Chunk(res.Body, fileName, chunker.Options{
		ChunkSize: opts.ChunkSize,
		Overlap:   opts.ChunkOverlap,
		Type:      "text",
	})
	if err != nil {
		return nil, models.NewExtractionFailed("chunking failed", err)
	}

	return &models.ProcessedContent{
		Text:   res.Body,
		Chunks: chunks,
		Metadata: models.FileMetadata{
			FileName:    fileName,
			FileType:    p.Type(),
			MimeType:    mimeType,
			SizeBytes:   len(data),
			ExtractedAt: time.Now(),
		},
	}, nil
}
