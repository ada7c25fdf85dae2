// Package pipeline drives documents through the fixed five-stage processing
// sequence: extracting, chunking, embedding, indexing, plus the
// pending/completed/error bookends.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/processors"
	"github.com/doclyn/doclyn/internal/core/status"
	"github.com/doclyn/doclyn/internal/models"
)

const totalSteps = 5

// Config tunes every pipeline run; per-call Options can override chunking.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	// StageTimeout bounds each collaborator call (extract, one embed, the
	// persistence write). Zero disables per-stage deadlines, matching the
	// original behavior.
	StageTimeout time.Duration
}

// Options carries per-call knobs and observer callbacks.
type Options struct {
	MimeType     string
	ChunkSize    int
	ChunkOverlap int

	OnProgress func(models.ProcessingStatus)
	OnComplete func(*models.ProcessedContent)
	OnError    func(error)
}

// Orchestrator owns one document pipeline per ProcessFile call. Pipelines
// for different documents may run concurrently; the only shared state is the
// status tracker.
type Orchestrator struct {
	registry *processors.Registry
	embedder core.EmbeddingProvider
	store    core.DocumentStore
	tracker  *status.Tracker
	cfg      Config

	cancels sync.Map // documentID → context.CancelFunc
}

func NewOrchestrator(reg *processors.Registry, emb core.EmbeddingProvider, store core.DocumentStore, tracker *status.Tracker, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		embedder: emb,
		store:    store,
		tracker:  tracker,
		cfg:      cfg,
	}
}

// Tracker exposes the status tracker for polling and subscriptions.
func (o *Orchestrator) Tracker() *status.Tracker { return o.tracker }

// Registry exposes the processor registry for capability listing.
func (o *Orchestrator) Registry() *processors.Registry { return o.registry }

// ProcessFile runs the full pipeline for one document and returns the
// processed content. Every failure updates the document's status to error
// with a typed *models.ProcessingError before being returned, so status is
// observable even when the call itself fails.
func (o *Orchestrator) ProcessFile(ctx context.Context, documentID string, data []byte, fileName string, opts *Options) (*models.ProcessedContent, error) {
	if opts == nil {
		opts = &Options{}
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancels.Store(documentID, cancel)
	defer o.cancels.Delete(documentID)

	startedAt := time.Now()
	o.publish(documentID, opts, func(st *models.ProcessingStatus) {
		st.FileName = fileName
		st.State = models.StatePending
		st.Progress = 0
		st.CurrentStep = "queued"
		st.TotalSteps = totalSteps
		st.StartedAt = startedAt
		st.CompletedAt = nil
		st.Error = nil
	})

	proc := o.registry.Lookup(fileName, opts.MimeType)
	if proc == nil {
		return nil, o.fail(documentID, opts, models.NewUnsupportedFileType(fileName))
	}

	// Stage 1: extraction (the extractor also chunks).
	if err := o.guard(pctx, documentID, opts); err != nil {
		return nil, err
	}
	o.advance(documentID, opts, models.StateExtracting, 20, "extracting content", startedAt)

	sctx, scancel := o.stageContext(pctx)
	content, err := proc.Extract(sctx, data, fileName, core.ExtractOptions{
		ChunkSize:    pick(opts.ChunkSize, o.cfg.ChunkSize),
		ChunkOverlap: pick(opts.ChunkOverlap, o.cfg.ChunkOverlap),
	})
	scancel()
	if err != nil {
		return nil, o.fail(documentID, opts, o.typed(err, sctx, "extracting", func(cause error) *models.ProcessingError {
			return models.NewProcessingFailed("extraction failed", cause)
		}))
	}
	for i := range content.Chunks {
		content.Chunks[i].DocumentID = documentID
	}

	// Stage 2: chunk accounting. Chunking already happened inside the
	// extractor; this transition records the totals.
	if err := o.guard(pctx, documentID, opts); err != nil {
		return nil, err
	}
	o.advance(documentID, opts, models.StateChunking, 40, "chunking text", startedAt, func(st *models.ProcessingStatus) {
		st.TotalChunks = len(content.Chunks)
	})

	// Stage 3: embedding, one chunk at a time in emission order. Sequential
	// on purpose: it bounds memory and matches the fan-out ceiling of
	// typical embedding APIs.
	if err := o.guard(pctx, documentID, opts); err != nil {
		return nil, err
	}
	o.advance(documentID, opts, models.StateEmbedding, 60, "generating embeddings", startedAt)

	for i := range content.Chunks {
		if err := o.guard(pctx, documentID, opts); err != nil {
			return nil, err
		}

		sctx, scancel := o.stageContext(pctx)
		vec, err := o.embedder.EmbedText(sctx, content.Chunks[i].Content)
		scancel()
		if err != nil {
			return nil, o.fail(documentID, opts, o.typed(err, sctx, "embedding", func(cause error) *models.ProcessingError {
				return models.NewProcessingFailed("embedding failed", cause)
			}))
		}
		content.Chunks[i].Embedding = vec

		processed := i + 1
		o.publish(documentID, opts, func(st *models.ProcessingStatus) {
			st.ProcessedChunks = processed
		})
	}

	// Stage 4: indexing via the persistence collaborator.
	if err := o.guard(pctx, documentID, opts); err != nil {
		return nil, err
	}
	o.advance(documentID, opts, models.StateIndexing, 80, "indexing content", startedAt)

	sctx, scancel = o.stageContext(pctx)
	err = o.persist(sctx, documentID, content)
	scancel()
	if err != nil {
		return nil, o.fail(documentID, opts, o.typed(err, sctx, "indexing", func(cause error) *models.ProcessingError {
			return models.NewPersistenceFailure(cause)
		}))
	}

	// Stage 5: done.
	completedAt := time.Now()
	o.publish(documentID, opts, func(st *models.ProcessingStatus) {
		st.State = models.StateCompleted
		st.Progress = 100
		st.CurrentStep = "completed"
		st.CompletedAt = &completedAt
		st.EstimatedRemaining = 0
	})
	if opts.OnComplete != nil {
		opts.OnComplete(content)
	}
	return content, nil
}

// Cancel requests best-effort cancellation of an in-flight pipeline. Future
// stage transitions stop; a collaborator call already in progress runs to
// completion. Returns false if no pipeline is in flight for the id.
func (o *Orchestrator) Cancel(documentID string) bool {
	v, ok := o.cancels.Load(documentID)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// Pause is an extension point with no implemented behavior: the status
// vocabulary implies it, but no transition exists in the state machine.
func (o *Orchestrator) Pause(documentID string) error { return core.ErrNotSupported }

// Resume is the counterpart extension point to Pause.
func (o *Orchestrator) Resume(documentID string) error { return core.ErrNotSupported }

// persist writes the chunk rows and the single content row.
func (o *Orchestrator) persist(ctx context.Context, documentID string, content *models.ProcessedContent) error {
	if err := o.store.InsertContentChunks(ctx, documentID, content.Chunks); err != nil {
		return err
	}
	return o.store.UpsertDocumentContent(ctx, documentID, content)
}

// guard fails the pipeline with CANCELLED once the document's context is done.
func (o *Orchestrator) guard(ctx context.Context, documentID string, opts *Options) error {
	if ctx.Err() == nil {
		return nil
	}
	return o.fail(documentID, opts, models.NewCancelled())
}

// stageContext applies the per-stage deadline when configured.
func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}

// typed maps a collaborator error to the pipeline taxonomy: an existing
// ProcessingError passes through, a stage deadline becomes STAGE_TIMEOUT,
// anything else goes through fallback.
func (o *Orchestrator) typed(err error, sctx context.Context, stage string, fallback func(error) *models.ProcessingError) *models.ProcessingError {
	var perr *models.ProcessingError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return models.NewStageTimeout(stage)
	}
	return fallback(err)
}

// fail records the terminal error state, notifies, and returns the typed error.
func (o *Orchestrator) fail(documentID string, opts *Options, perr *models.ProcessingError) error {
	completedAt := time.Now()
	o.publish(documentID, opts, func(st *models.ProcessingStatus) {
		st.State = models.StateError
		st.CurrentStep = "failed"
		st.Error = perr
		st.CompletedAt = &completedAt
	})
	if opts.OnError != nil {
		opts.OnError(perr)
	}
	return perr
}

// advance moves the status to the next stage with its target progress and a
// naive time estimate extrapolated from elapsed time.
func (o *Orchestrator) advance(documentID string, opts *Options, state models.ProcessingState, progress int, step string, startedAt time.Time, extra ...func(*models.ProcessingStatus)) {
	elapsed := time.Since(startedAt)
	var remaining time.Duration
	if progress > 0 {
		remaining = elapsed * time.Duration(100-progress) / time.Duration(progress)
	}

	o.publish(documentID, opts, func(st *models.ProcessingStatus) {
		st.State = state
		st.Progress = progress
		st.CurrentStep = step
		st.EstimatedRemaining = remaining
		for _, fn := range extra {
			fn(st)
		}
	})
}

// publish stores the mutated status and forwards the snapshot to the
// caller's progress callback.
func (o *Orchestrator) publish(documentID string, opts *Options, mutate func(*models.ProcessingStatus)) {
	snapshot := o.tracker.Update(documentID, mutate)
	if opts.OnProgress != nil {
		opts.OnProgress(snapshot)
	}
}

func pick(override, fallback int) int {
	if override > 0 {
		return override
	}
	return fallback
}
