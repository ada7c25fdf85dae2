package core

import "context"

// EmbeddingProvider maps chunk text to fixed-length numeric vectors. The
// pipeline calls EmbedText once per chunk, sequentially; EmbedTexts is the
// batched variant for callers that can tolerate coarser failure granularity.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
