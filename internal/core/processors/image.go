package processors

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/models"
)

// imageConfidence signals lower trust than the 1.0 default used by
// text-bearing formats: no real content recognition happens here.
const imageConfidence = 0.8

var imageMimeByExt = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ImageProcessor does not perform OCR or layout analysis. It emits a single
// chunk holding a placeholder description plus a base64 copy of the image so
// a later enrichment pass can describe it.
type ImageProcessor struct{}

var _ core.FileProcessor = (*ImageProcessor)(nil)

func NewImageProcessor() *ImageProcessor { return &ImageProcessor{} }

func (p *ImageProcessor) Type() string { return "image" }

func (p *ImageProcessor) Extensions() []string {
	return []string{"png", "jpg", "jpeg", "gif", "webp"}
}

func (p *ImageProcessor) MimeTypes() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
}

func (p *ImageProcessor) Icon() string { return "file-image" }

func (p *ImageProcessor) Extract(ctx context.Context, data []byte, fileName string, opts core.ExtractOptions) (*models.ProcessedContent, error) {
	if len(data) == 0 {
		return nil, models.NewExtractionFailed("image file is empty", nil)
	}

	mimeType, ok := imageMimeByExt[normalizeExt(fileName)]
	if !ok {
		mimeType = "application/octet-stream"
	}

	description := fmt.Sprintf("Image file %q (%s, %d bytes). Visual content has not been analyzed.",
		fileName, mimeType, len(data))
	encoded := base64.StdEncoding.EncodeToString(data)

	chunk := models.ContentChunk{
		ID:         uuid.NewString(),
		DocumentID: fileName,
		Position:   0,
		Content:    description + "\n" + encoded,
		StartIndex: 0,
		EndIndex:   1,
		Tokens:     len(strings.Fields(description)),
		Metadata: models.ChunkMetadata{
			Type:       "image",
			Confidence: imageConfidence,
		},
		CreatedAt: time.Now(),
	}

	return &models.ProcessedContent{
		Text:   description,
		Chunks: []models.ContentChunk{chunk},
		Images: []models.ExtractedImage{{
			ID:          uuid.NewString(),
			Description: description,
			MimeType:    mimeType,
			Base64Data:  encoded,
		}},
		Metadata: models.FileMetadata{
			FileName:    fileName,
			FileType:    p.Type(),
			MimeType:    mimeType,
			SizeBytes:   len(data),
			ExtractedAt: time.Now(),
		},
	}, nil
}
