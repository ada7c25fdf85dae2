// Package processors holds the closed set of format-specific extractors and
// the registry that dispatches files to them by extension or MIME type.
package processors

import (
	"path/filepath"
	"strings"

	"github.com/doclyn/doclyn/internal/core"
)

// Registry maps file extensions and MIME types to processors. Stateless after
// construction; Lookup and SupportedTypes are safe for concurrent use once
// registration is done.
type Registry struct {
	byExt  map[string]core.FileProcessor
	byMime map[string]core.FileProcessor
	order  []core.FileProcessor // registration order, distinct processors
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]core.FileProcessor),
		byMime: make(map[string]core.FileProcessor),
	}
}

// NewDefaultRegistry returns a registry with all five built-in processors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFProcessor())
	r.Register(NewOfficeProcessor())
	r.Register(NewSpreadsheetProcessor())
	r.Register(NewImageProcessor())
	r.Register(NewTextProcessor())
	return r
}

// Register adds p under all of its extensions and MIME types. Later
// registrations win on alias collisions.
func (r *Registry) Register(p core.FileProcessor) {
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
	for _, mt := range p.MimeTypes() {
		r.byMime[strings.ToLower(mt)] = p
	}
	r.order = append(r.order, p)
}

// Lookup resolves a processor for fileName, falling back to mimeType when the
// extension is unknown. Returns nil if both fail. No wildcard or prefix
// matching.
func (r *Registry) Lookup(fileName, mimeType string) core.FileProcessor {
	if p, ok := r.byExt[normalizeExt(fileName)]; ok {
		return p
	}
	if mimeType != "" {
		if p, ok := r.byMime[strings.ToLower(mimeType)]; ok {
			return p
		}
	}
	return nil
}

// SupportedTypes lists the registered processors in registration order.
func (r *Registry) SupportedTypes() []core.ProcessorInfo {
	out := make([]core.ProcessorInfo, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, core.ProcessorInfo{
			Type:       p.Type(),
			Extensions: p.Extensions(),
			MimeTypes:  p.MimeTypes(),
			Icon:       p.Icon(),
		})
	}
	return out
}

// normalizeExt returns the lower-cased substring after the last dot, without
// the dot itself.
func normalizeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return strings.TrimPrefix(ext, ".")
}
