package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/processors"
	"github.com/doclyn/doclyn/internal/core/status"
	"github.com/doclyn/doclyn/internal/models"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	slow  time.Duration
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type fakeStore struct {
	mu          sync.Mutex
	chunks      map[string][]models.ContentChunk
	content     map[string]*models.ProcessedContent
	statuses    map[string]string
	failInserts bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:   make(map[string][]models.ContentChunk),
		content:  make(map[string]*models.ProcessedContent),
		statuses: make(map[string]string),
	}
}

func (f *fakeStore) CreateDocument(ctx context.Context, doc *models.Document) error { return nil }

func (f *fakeStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return &models.Document{ID: id, FileName: "stub.txt"}, nil
}

func (f *fakeStore) ListDocuments(ctx context.Context) ([]models.Document, error) { return nil, nil }

func (f *fakeStore) UpdateDocumentStatus(ctx context.Context, id string, st string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = st
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, id)
	delete(f.content, id)
	delete(f.statuses, id)
	return nil
}

func (f *fakeStore) SearchChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.ContentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunks := f.chunks[documentID]
	if limit > 0 && limit < len(chunks) {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (f *fakeStore) InsertContentChunks(ctx context.Context, documentID string, chunks []models.ContentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInserts {
		return errors.New("connection reset by peer")
	}
	f.chunks[documentID] = append([]models.ContentChunk(nil), chunks...)
	return nil
}

func (f *fakeStore) GetChunksByDocument(ctx context.Context, documentID string) ([]models.ContentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[documentID], nil
}

func (f *fakeStore) UpsertDocumentContent(ctx context.Context, documentID string, content *models.ProcessedContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInserts {
		return errors.New("connection reset by peer")
	}
	f.content[documentID] = content
	return nil
}

func (f *fakeStore) Close() error { return nil }

func newTestOrchestrator(emb core.EmbeddingProvider, store core.DocumentStore, cfg Config) *Orchestrator {
	return NewOrchestrator(processors.NewDefaultRegistry(), emb, store, status.NewTracker(), cfg)
}

func TestProcessFile_HappyPath(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newFakeStore()
	o := newTestOrchestrator(emb, store, Config{})

	var progress []int
	opts := &Options{
		OnProgress: func(st models.ProcessingStatus) {
			if len(progress) == 0 || progress[len(progress)-1] != st.Progress {
				progress = append(progress, st.Progress)
			}
		},
	}

	content, err := o.ProcessFile(context.Background(), "doc-1", []byte("This is a test document with some content..."), "sample.txt", opts)
	require.NoError(t, err)
	require.NotNil(t, content)

	// Distinct progress values hit every stage boundary exactly once.
	assert.Equal(t, []int{0, 20, 40, 60, 80, 100}, progress)

	st, ok := o.Tracker().Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, models.StateCompleted, st.State)
	assert.Equal(t, 100, st.Progress)
	assert.NotNil(t, st.CompletedAt)
	assert.Nil(t, st.Error)
	assert.Equal(t, st.TotalChunks, st.ProcessedChunks)

	// Every chunk carries the document id and an embedding.
	require.NotEmpty(t, store.chunks["doc-1"])
	for _, ch := range store.chunks["doc-1"] {
		assert.Equal(t, "doc-1", ch.DocumentID)
		assert.Len(t, ch.Embedding, 3)
	}
	require.NotNil(t, store.content["doc-1"])
}

func TestProcessFile_EmbedsChunksSequentially(t *testing.T) {
	emb := &fakeEmbedder{}
	store := newFakeStore()
	o := newTestOrchestrator(emb, store, Config{})

	text := strings.Repeat("alpha beta gamma delta ", 400)
	content, err := o.ProcessFile(context.Background(), "doc-seq", []byte(text), "long.txt", nil)
	require.NoError(t, err)
	require.Greater(t, len(content.Chunks), 1)

	// Embedder saw the chunks in emission order.
	require.Len(t, emb.calls, len(content.Chunks))
	for i, ch := range content.Chunks {
		assert.Equal(t, ch.Content, emb.calls[i])
	}
}

func TestProcessFile_UnsupportedType(t *testing.T) {
	o := newTestOrchestrator(&fakeEmbedder{}, newFakeStore(), Config{})

	var notified error
	opts := &Options{OnError: func(err error) { notified = err }}

	_, err := o.ProcessFile(context.Background(), "doc-x", []byte("data"), "archive.xyz", opts)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeUnsupportedFileType, perr.Code)
	assert.False(t, perr.Retryable)
	assert.Equal(t, err, notified)

	// A status record still exists for the rejected document.
	st, ok := o.Tracker().Get("doc-x")
	require.True(t, ok)
	assert.Equal(t, models.StateError, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, models.CodeUnsupportedFileType, st.Error.Code)
}

func TestProcessFile_CompletionNotification(t *testing.T) {
	o := newTestOrchestrator(&fakeEmbedder{}, newFakeStore(), Config{})

	ch, unsub := o.Tracker().Subscribe("doc-sub")
	defer unsub()

	done := make(chan *models.ProcessedContent, 1)
	opts := &Options{OnComplete: func(c *models.ProcessedContent) { done <- c }}

	_, err := o.ProcessFile(context.Background(), "doc-sub", []byte("hello world"), "note.txt", opts)
	require.NoError(t, err)

	select {
	case c := <-done:
		require.NotNil(t, c)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}

	// The subscription eventually observes the completed state.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.State == models.StateCompleted {
				assert.Equal(t, 100, st.Progress)
				return
			}
		case <-deadline:
			t.Fatal("never observed completed state on subscription")
		}
	}
}

func TestProcessFile_PersistenceFailure(t *testing.T) {
	store := newFakeStore()
	store.failInserts = true
	o := newTestOrchestrator(&fakeEmbedder{}, store, Config{})

	_, err := o.ProcessFile(context.Background(), "doc-db", []byte("some words here"), "note.txt", nil)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodePersistenceFailure, perr.Code)
	assert.True(t, perr.Retryable)
	assert.NotEmpty(t, perr.Message)
	assert.NotEmpty(t, perr.Details)

	st, _ := o.Tracker().Get("doc-db")
	assert.Equal(t, models.StateError, st.State)
}

func TestProcessFile_ExtractionFailure(t *testing.T) {
	o := newTestOrchestrator(&fakeEmbedder{}, newFakeStore(), Config{})

	_, err := o.ProcessFile(context.Background(), "doc-bad", []byte{0xff, 0xfe}, "bad.txt", nil)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeExtractionFailed, perr.Code)
	assert.True(t, perr.Retryable)
}

func TestProcessFile_EmbeddingFailure(t *testing.T) {
	emb := &fakeEmbedder{fail: true}
	o := newTestOrchestrator(emb, newFakeStore(), Config{})

	_, err := o.ProcessFile(context.Background(), "doc-emb", []byte("some words"), "note.txt", nil)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeProcessingFailed, perr.Code)
	assert.True(t, perr.Retryable)
}

func TestProcessFile_StageTimeout(t *testing.T) {
	emb := &fakeEmbedder{slow: 200 * time.Millisecond}
	o := newTestOrchestrator(emb, newFakeStore(), Config{StageTimeout: 20 * time.Millisecond})

	_, err := o.ProcessFile(context.Background(), "doc-slow", []byte("some words"), "note.txt", nil)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeStageTimeout, perr.Code)
	assert.True(t, perr.Retryable)
}

func TestProcessFile_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before the first stage guard

	o := newTestOrchestrator(&fakeEmbedder{}, newFakeStore(), Config{})
	_, err := o.ProcessFile(ctx, "doc-c", []byte("words"), "note.txt", nil)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeCancelled, perr.Code)

	st, _ := o.Tracker().Get("doc-c")
	assert.Equal(t, models.StateError, st.State)
}

func TestCancel_UnknownDocument(t *testing.T) {
	o := newTestOrchestrator(&fakeEmbedder{}, newFakeStore(), Config{})
	assert.False(t, o.Cancel("never-submitted"))
}

func TestPauseResume_NotSupported(t *testing.T) {
	o := newTestOrchestrator(&fakeEmbedder{}, newFakeStore(), Config{})
	assert.ErrorIs(t, o.Pause("doc-1"), core.ErrNotSupported)
	assert.ErrorIs(t, o.Resume("doc-1"), core.ErrNotSupported)
}

func TestParseStorageURL(t *testing.T) {
	cases := []struct {
		raw, bucket, key string
		wantErr          bool
	}{
		{"s3://docs/uploads/a.pdf", "docs", "uploads/a.pdf", false},
		{"https://docs.s3.us-east-1.amazonaws.com/uploads/a.pdf", "docs", "uploads/a.pdf", false},
		{"https://s3.us-east-1.amazonaws.com/docs/uploads/a.pdf", "docs", "uploads/a.pdf", false},
		{"ftp://nope/a.pdf", "", "", true},
		{"s3://bucket-only", "", "", true},
	}
	for _, tc := range cases {
		bucket, key, err := ParseStorageURL(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.bucket, bucket, tc.raw)
		assert.Equal(t, tc.key, key, tc.raw)
	}
}
