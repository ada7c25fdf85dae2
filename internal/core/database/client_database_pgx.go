package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/doclyn/doclyn/internal/config"
	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DocumentStore = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DocumentStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Ensure bootstrap once
	if err := EnsureBootstrapped(ctx, db); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, file_name, storage_url, source_type, content_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.StorageURL, doc.SourceType, doc.ContentType, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, storage_url, source_type, content_type, status, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, file_name, storage_url, source_type, content_type, status, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// InsertContentChunks inserts chunks in a single transaction. Re-processing a
// document replaces its previous chunk set.
func (c *DatabaseClient) InsertContentChunks(ctx context.Context, documentID string, chunks []models.ContentChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, content, start_index, end_index, tokens, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, ch.Position, ch.Content, ch.StartIndex, ch.EndIndex, ch.Tokens, vec, meta, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.ContentChunk, error) {
	const q = `
		SELECT id, document_id, position, content, start_index, end_index, tokens, embedding, metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ContentChunk
	for rows.Next() {
		var (
			ch   models.ContentChunk
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Position, &ch.Content, &ch.StartIndex, &ch.EndIndex, &ch.Tokens, &emb, &meta, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UpsertDocumentContent replaces the single per-document content row holding
// file metadata, extracted images, and extracted tables.
func (c *DatabaseClient) UpsertDocumentContent(ctx context.Context, documentID string, content *models.ProcessedContent) error {
	if content == nil {
		return errors.New("nil content")
	}
	meta, err := json.Marshal(content.Metadata)
	if err != nil {
		return err
	}
	images, err := json.Marshal(content.Images)
	if err != nil {
		return err
	}
	tables, err := json.Marshal(content.Tables)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_content (document_id, text, metadata, images, tables, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (document_id)
		DO UPDATE SET text = EXCLUDED.text, metadata = EXCLUDED.metadata,
		              images = EXCLUDED.images, tables = EXCLUDED.tables, updated_at = now()
	`
	_, err = c.db.ExecContext(ctx, q, documentID, content.Text, meta, images, tables)
	return err
}

// SearchChunks finds top-k similar chunks within a document for a query embedding.
func (c *DatabaseClient) SearchChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.ContentChunk, error) {
	const q = `
		SELECT id, document_id, position, content, start_index, end_index, tokens, embedding
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ContentChunk
	for rows.Next() {
		var (
			ch  models.ContentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Position, &ch.Content, &ch.StartIndex, &ch.EndIndex, &ch.Tokens, &emb); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}
