package core

import (
	"context"
	"io"

	"github.com/doclyn/doclyn/internal/models"
)

// DocumentStore defines all persistence the pipeline and handlers need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	// DeleteDocument removes the document row; chunk and content rows go
	// with it via cascade.
	DeleteDocument(ctx context.Context, id string) error

	// InsertContentChunks writes chunk rows (id, document_id, content,
	// start_index, end_index, tokens, embedding, metadata, created_at) in one
	// transaction.
	InsertContentChunks(ctx context.Context, documentID string, chunks []models.ContentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.ContentChunk, error)

	// SearchChunks returns the limit chunks of one document nearest to
	// queryVec by embedding distance.
	SearchChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.ContentChunk, error)

	// UpsertDocumentContent writes the single metadata row for a document
	// (metadata, images, tables, updated_at), replacing any previous row.
	UpsertDocumentContent(ctx context.Context, documentID string, content *models.ProcessedContent) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
