package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/doclyn/doclyn/internal/core"
)

// Ingestor consumes queued document ids and runs each one through the
// orchestrator on a bounded worker pool. Upload handlers enqueue and return
// immediately; all heavy work happens here.
type Ingestor struct {
	store core.DocumentStore
	obj   core.ObjectClient
	orch  *Orchestrator

	pool *ants.Pool
	jobs chan string
	g    *errgroup.Group
}

func NewIngestor(store core.DocumentStore, obj core.ObjectClient, orch *Orchestrator, workers int) (*Ingestor, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Ingestor{
		store: store,
		obj:   obj,
		orch:  orch,
		pool:  pool,
		jobs:  make(chan string, 64),
	}, nil
}

// Start launches the dispatcher. It returns immediately; call Stop to drain.
func (in *Ingestor) Start(ctx context.Context) {
	in.g, ctx = errgroup.WithContext(ctx)
	in.g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case docID, ok := <-in.jobs:
				if !ok {
					return nil
				}
				id := docID
				if err := in.pool.Submit(func() {
					if err := in.processOne(context.Background(), id); err != nil {
						log.Printf("ingestor: document %s failed: %v", id, err)
					}
				}); err != nil {
					log.Printf("ingestor: submit %s: %v", id, err)
				}
			}
		}
	})
}

// Enqueue hands a document id to the dispatcher. Blocks only when the queue
// buffer is full.
func (in *Ingestor) Enqueue(documentID string) {
	in.jobs <- documentID
}

// Stop closes the queue, waits for the dispatcher, and releases the pool.
// In-flight pipeline runs finish on their own.
func (in *Ingestor) Stop() error {
	close(in.jobs)
	var err error
	if in.g != nil {
		err = in.g.Wait()
	}
	in.pool.Release()
	if err == context.Canceled {
		return nil
	}
	return err
}

// processOne loads the document row, fetches the raw bytes from object
// storage, runs the pipeline, and mirrors the terminal state onto the
// document row.
func (in *Ingestor) processOne(ctx context.Context, documentID string) error {
	doc, err := in.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", documentID, err)
	}

	bucket, key, err := ParseStorageURL(doc.StorageURL)
	if err != nil {
		return fmt.Errorf("document %s: %w", documentID, err)
	}
	data, err := in.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("fetching %s from storage: %w", documentID, err)
	}

	if err := in.store.UpdateDocumentStatus(ctx, documentID, "processing"); err != nil {
		return fmt.Errorf("marking %s processing: %w", documentID, err)
	}

	_, perr := in.orch.ProcessFile(ctx, documentID, data, doc.FileName, &Options{
		MimeType: doc.ContentType,
	})

	final := "ready"
	if perr != nil {
		final = "failed"
	}
	if err := in.store.UpdateDocumentStatus(ctx, documentID, final); err != nil {
		return fmt.Errorf("marking %s %s: %w", documentID, final, err)
	}
	return perr
}

// ParseStorageURL accepts s3://bucket/key and the https virtual-hosted form
// (bucket.s3.region.amazonaws.com/key).
func ParseStorageURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid storage url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "s3":
		bucket = u.Host
		key = strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		host := u.Host
		if i := strings.Index(host, ".s3"); i > 0 {
			bucket = host[:i]
			key = strings.TrimPrefix(u.Path, "/")
		} else {
			// Path-style: s3.region.amazonaws.com/bucket/key.
			parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
			if len(parts) == 2 {
				bucket, key = parts[0], parts[1]
			}
		}
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("cannot derive bucket/key from storage url %q", raw)
	}
	return bucket, key, nil
}
