package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/doclyn/doclyn/internal/config"
	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/pipeline"
	"github.com/doclyn/doclyn/internal/models"
)

const maxUploadBytes = 52 << 20 // 52 MB

type DocumentHandler struct {
	store    core.DocumentStore
	objects  core.ObjectClient
	ingestor *pipeline.Ingestor
	orch     *pipeline.Orchestrator
	embedder core.EmbeddingProvider
	cfg      *config.Config
}

func NewDocumentHandler(store core.DocumentStore, objects core.ObjectClient, ing *pipeline.Ingestor, orch *pipeline.Orchestrator, emb core.EmbeddingProvider, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{store: store, objects: objects, ingestor: ing, orch: orch, embedder: emb, cfg: cfg}
}

// UploadDocument handles file upload, DB insert, and background processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "reading upload failed", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters.
	cleanFilename := filepath.Base(header.Filename)
	docID := uuid.NewString()
	s3Key := fmt.Sprintf("%s/%s", docID, cleanFilename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	url, err := h.objects.UploadFile(uploadctx, h.cfg.BucketName, s3Key, data, contentType)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:          docID,
		FileName:    cleanFilename,
		StorageURL:  url,
		SourceType:  "upload",
		Status:      "uploaded",
		ContentType: contentType,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := h.store.CreateDocument(uploadctx, doc); err != nil {
		log.Printf("DB insert failed for doc %s: %v", docID, err)
		http.Error(w, fmt.Sprintf("failed to store document metadata: %v", err), http.StatusInternalServerError)
		return
	}

	h.ingestor.Enqueue(doc.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.store.ListDocuments(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetStatus returns the current processing snapshot for one document.
func (h *DocumentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	st, ok := h.orch.Tracker().Get(docID)
	if !ok {
		http.Error(w, "no processing status for document", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// GetChunks returns the persisted chunks of a processed document.
func (h *DocumentHandler) GetChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	chunks, err := h.store.GetChunksByDocument(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chunks)
}

const defaultSearchLimit = 5

// SearchChunks embeds the query text and returns the document's nearest
// chunks by embedding distance.
func (h *DocumentHandler) SearchChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	queryVec, err := h.embedder.EmbedText(r.Context(), query)
	if err != nil {
		http.Error(w, fmt.Sprintf("embedding query failed: %v", err), http.StatusBadGateway)
		return
	}

	chunks, err := h.store.SearchChunks(r.Context(), docID, queryVec, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chunks)
}

// DeleteDocument removes the stored object and the document row (chunks and
// content cascade with it).
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	doc, err := h.store.GetDocumentByID(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	bucket, key, err := pipeline.ParseStorageURL(doc.StorageURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.objects.DeleteFile(r.Context(), bucket, key); err != nil {
		http.Error(w, fmt.Sprintf("deleting stored file failed: %v", err), http.StatusInternalServerError)
		return
	}

	if err := h.store.DeleteDocument(r.Context(), docID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadDocument streams the raw uploaded bytes back to the client.
func (h *DocumentHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	doc, err := h.store.GetDocumentByID(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	bucket, key, err := pipeline.ParseStorageURL(doc.StorageURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body, err := h.objects.GetObjectReader(r.Context(), bucket, key)
	if err != nil {
		http.Error(w, fmt.Sprintf("fetching stored file failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("streaming document %s: %v", docID, err)
	}
}

// StreamEvents pushes status updates for one document as server-sent events
// until the client disconnects or the pipeline reaches a terminal state.
func (h *DocumentHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := h.orch.Tracker().Subscribe(docID)
	defer unsubscribe()

	// Send the current snapshot first; subscriptions never replay.
	if st, ok := h.orch.Tracker().Get(docID); ok {
		writeEvent(w, st)
		flusher.Flush()
		if st.State.Terminal() {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			writeEvent(w, st)
			flusher.Flush()
			if st.State.Terminal() {
				return
			}
		}
	}
}

// CancelProcessing requests best-effort cancellation of an in-flight pipeline.
func (h *DocumentHandler) CancelProcessing(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")

	if !h.orch.Cancel(docID) {
		http.Error(w, "no processing in flight for document", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetSupportedTypes lists the registered processors.
func (h *DocumentHandler) GetSupportedTypes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.orch.Registry().SupportedTypes())
}

func writeEvent(w http.ResponseWriter, st models.ProcessingStatus) {
	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
}
