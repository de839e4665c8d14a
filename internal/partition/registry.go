// Package partition dispatches raw content files to a partitioner by file
// extension. The partitioners themselves are collaborators: the pipeline
// only cares that they turn one raw file into a list of elements or report
// the type as unsupported.
package partition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

// Partitioner turns one raw content file into structured elements.
type Partitioner func(path string, fd filedata.FileData) ([]element.Element, error)

// Registry maps file extensions to partitioners.
type Registry struct {
	partitioners map[string]Partitioner // extension -> partitioner
}

func NewRegistry() *Registry {
	return &Registry{partitioners: make(map[string]Partitioner)}
}

func (r *Registry) Register(ext string, p Partitioner) {
	r.partitioners[strings.ToLower(ext)] = p
}

// ForFile returns the partitioner for a given file path, or an
// ErrUnsupportedFileType error when none is registered.
func (r *Registry) ForFile(path string) (Partitioner, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := r.partitioners[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeerr.ErrUnsupportedFileType, ext)
	}
	return p, nil
}

// SupportedExtensions returns all registered extensions, sorted. The list
// participates in cache fingerprints, so the order must be stable.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.partitioners))
	for ext := range r.partitioners {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Partition implements the pipeline's partition stage contract: dispatch by
// extension, then run the collaborator.
func (r *Registry) Partition(ctx context.Context, path string, fd filedata.FileData) ([]element.Element, error) {
	p, err := r.ForFile(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p(path, fd)
}

// Default returns a registry with the built-in partitioners registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(".txt", PartitionText)
	r.Register(".text", PartitionText)
	r.Register(".log", PartitionText)
	r.Register(".md", PartitionMarkdown)
	r.Register(".markdown", PartitionMarkdown)
	r.Register(".pdf", PartitionPDF)
	return r
}

// elementID derives a stable element identifier from the source filename,
// the element text, and its ordinal. Deterministic so reprocessing the same
// content yields the same IDs.
func elementID(filename, text string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", filename, ordinal, text)))
	return hex.EncodeToString(sum[:])[:32]
}
