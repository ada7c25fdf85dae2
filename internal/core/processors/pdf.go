package processors

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/chunker"
	"github.com/doclyn/doclyn/internal/models"
)

// PDFProcessor extracts PDF text via docconv and structural metadata
// (page count, validation) via pdfcpu.
type PDFProcessor struct {
	conf *model.Configuration
}

var _ core.FileProcessor = (*PDFProcessor)(nil)

func NewPDFProcessor() *PDFProcessor {
	return &PDFProcessor{conf: model.NewDefaultConfiguration()}
}

func (p *PDFProcessor) Type() string { return "pdf" }

func (p *PDFProcessor) Extensions() []string { return []string{"pdf"} }

func (p *PDFProcessor) MimeTypes() []string { return []string{"application/pdf"} }

func (p *PDFProcessor) Icon() string { return "file-pdf" }

func (p *PDFProcessor) Extract(ctx context.Context, data []byte, fileName string, opts core.ExtractOptions) (*models.ProcessedContent, error) {
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), p.conf)
	if err != nil {
		return nil, models.NewExtractionFailed("pdf validation failed", err)
	}

	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return nil, models.NewExtractionFailed("pdf text extraction failed", err)
	}

	// Prefix each page's text with a marker so chunk content retains page
	// layout. Chunk metadata does not currently carry the page number back
	// out of the marker.
	text := markPages(res.Body)

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
			MimeType:    "application/pdf",
			SizeBytes:   len(data),
			PageCount:   pdfCtx.PageCount,
			ExtractedAt: time.Now(),
		},
	}, nil
}

// markPages splits extracted text on form feeds (pdftotext page separators)
// and prefixes each page with "--- Page N ---". Text without form feeds is
// treated as a single page.
func markPages(body string) string {
	pages := strings.Split(body, "\f")

	var sb strings.Builder
	n := 0
	for _, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		n++
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s", n, page)
	}
	return sb.String()
}
