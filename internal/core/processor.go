package core

import (
	"context"

	"github.com/doclyn/doclyn/internal/models"
)

// ExtractOptions tunes chunking inside an extractor call. Zero values fall
// back to the chunker defaults (1000 tokens, 200 overlap).
type ExtractOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

// FileProcessor turns one file format's raw bytes into extracted text,
// metadata and optional tables/images. Implementations are stateless after
// construction and safe for concurrent use. There is one processor per
// supported format; new formats are added as new variants, not by patching a
// generic processor.
type FileProcessor interface {
	// Type is the stable processor identifier (pdf, document, spreadsheet, image, text).
	Type() string
	// Extensions lists the lower-cased file extensions (without dot) this processor claims.
	Extensions() []string
	// MimeTypes lists the MIME types this processor claims.
	MimeTypes() []string
	// Icon is a UI hint for file listings.
	Icon() string

	// Extract parses data into a ProcessedContent with chunking already
	// applied. A malformed source fails with a *models.ProcessingError of
	// code EXTRACTION_FAILED.
	Extract(ctx context.Context, data []byte, fileName string, opts ExtractOptions) (*models.ProcessedContent, error)
}

// ProcessorInfo describes one registered processor for capability listings.
type ProcessorInfo struct {
	Type       string   `json:"type"`
	Extensions []string `json:"extensions"`
	MimeTypes  []string `json:"mime_types"`
	Icon       string   `json:"icon"`
}
