package models

import (
	"time"
)

// Document represents an uploaded file tracked in the database.
type Document struct {
	ID          string    `db:"id" json:"id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"` // S3 URL of the raw upload
	SourceType  string    `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"` // uploaded | processing | ready | failed
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChunkMetadata carries per-chunk provenance and trust attributes.
type ChunkMetadata struct {
	Type       string  `json:"type"`              // text | table | image
	Confidence float64 `json:"confidence"`        // 1.0 for text-bearing formats, lower for placeholders
	Page       int     `json:"page,omitempty"`    // not populated by current extractors
	Section    string  `json:"section,omitempty"` // e.g. sheet name for spreadsheets
	Language   string  `json:"language,omitempty"`
}

// ContentChunk is one span of extracted text sized for embedding.
//
// StartIndex/EndIndex are word offsets into the source word sequence for
// token-window chunks, and line offsets for line-grouped chunks. Tokens is an
// approximate count (words), not a real tokenizer count.
type ContentChunk struct {
	ID         string        `db:"id" json:"id"`
	DocumentID string        `db:"document_id" json:"document_id"`
	Position   int           `db:"position" json:"position"` // zero-based ordinal within one extraction run
	Content    string        `db:"content" json:"content"`
	StartIndex int           `db:"start_index" json:"start_index"`
	EndIndex   int           `db:"end_index" json:"end_index"`
	Tokens     int           `db:"tokens" json:"tokens"`
	Embedding  []float32     `db:"embedding" json:"embedding,omitempty"` // pgvector column
	Metadata   ChunkMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// FileMetadata describes the source file an extraction came from.
type FileMetadata struct {
	FileName    string    `json:"file_name"`
	FileType    string    `json:"file_type"` // processor type: pdf | document | spreadsheet | image | text
	MimeType    string    `json:"mime_type"`
	SizeBytes   int       `json:"size_bytes"`
	PageCount   int       `json:"page_count,omitempty"`
	SheetNames  []string  `json:"sheet_names,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// ExtractedTable is a tabular region recovered from a file (one per sheet for
// spreadsheets).
type ExtractedTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Caption string     `json:"caption,omitempty"`
}

// ExtractedImage is an embedded or standalone image carried through the
// pipeline as base64. No visual analysis is performed on it.
type ExtractedImage struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
	Base64Data  string `json:"base64_data"`
}

// ProcessedContent is the full output of one successful extraction.
type ProcessedContent struct {
	Text     string           `json:"text"`
	Chunks   []ContentChunk   `json:"chunks"`
	Metadata FileMetadata     `json:"metadata"`
	Images   []ExtractedImage `json:"images,omitempty"`
	Tables   []ExtractedTable `json:"tables,omitempty"`
}

// ProcessingState is one phase of the document pipeline.
type ProcessingState string

const (
	StatePending    ProcessingState = "pending"
	StateExtracting ProcessingState = "extracting"
	StateChunking   ProcessingState = "chunking"
	StateEmbedding  ProcessingState = "embedding"
	StateIndexing   ProcessingState = "indexing"
	StateCompleted  ProcessingState = "completed"
	StateError      ProcessingState = "error"
)

// Terminal reports whether no further transitions can happen from s.
func (s ProcessingState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// ProcessingStatus is a snapshot of one document's progress. The status
// tracker hands out copies only; callers never share a mutable reference
// with the pipeline.
type ProcessingStatus struct {
	DocumentID         string           `json:"document_id"`
	FileName           string           `json:"file_name"`
	State              ProcessingState  `json:"status"`
	Progress           int              `json:"progress"` // 0..100
	CurrentStep        string           `json:"current_step"`
	TotalSteps         int              `json:"total_steps"`
	Error              *ProcessingError `json:"error,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	EstimatedRemaining time.Duration    `json:"estimated_time_remaining,omitempty"`
	ProcessedChunks    int              `json:"processed_chunks,omitempty"`
	TotalChunks        int              `json:"total_chunks,omitempty"`
}
