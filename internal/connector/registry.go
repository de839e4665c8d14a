// Package connector maps connector names to the stage factories they
// implement. The orchestration core drives sources and destinations through
// this table without knowing their specifics; connectors are registered
// explicitly at startup, no reflection or plugin discovery.
package connector

import (
	"sort"
	"sync"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

// SourceEntry holds the factories a source connector registers. Each factory
// receives the full configuration and picks out its own typed section.
type SourceEntry struct {
	NewIndexer    func(cfg *config.Config) (stage.Indexer, error)
	NewDownloader func(cfg *config.Config) (stage.Downloader, error)

	// Config returns the connector's typed configuration section; it feeds
	// the source configuration fingerprint, so two runs against different
	// source settings never share cache entries. Secret fields serialize
	// redacted and therefore never enter a fingerprint.
	Config func(cfg *config.Config) any
}

// DestinationEntry holds the factories a destination connector registers.
// NewStager may be nil when the destination consumes embedded elements
// as-is; the orchestrator then passes artifacts through unstaged.
type DestinationEntry struct {
	NewStager   func(cfg *config.Config) (stage.UploadStager, error)
	NewUploader func(cfg *config.Config) (stage.Uploader, error)

	// Config returns the connector's typed configuration section for the
	// upload-stage fingerprint.
	Config func(cfg *config.Config) any
}

// Registry is the explicit connector table.
type Registry struct {
	mu           sync.RWMutex
	sources      map[string]SourceEntry
	destinations map[string]DestinationEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceEntry),
		destinations: make(map[string]DestinationEntry),
	}
}

// RegisterSource adds a source connector under name, replacing any previous
// registration.
func (r *Registry) RegisterSource(name string, entry SourceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = entry
}

// RegisterDestination adds a destination connector under name.
func (r *Registry) RegisterDestination(name string, entry DestinationEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[name] = entry
}

// Source resolves a registered source connector by name.
func (r *Registry) Source(name string) (SourceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sources[name]
	if !ok {
		return SourceEntry{}, pipeerr.Configuration("unknown source connector: " + name)
	}
	return entry, nil
}

// Destination resolves a registered destination connector by name.
func (r *Registry) Destination(name string) (DestinationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.destinations[name]
	if !ok {
		return DestinationEntry{}, pipeerr.Configuration("unknown destination connector: " + name)
	}
	return entry, nil
}

// SourceNames lists registered source connectors, sorted.
func (r *Registry) SourceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestinationNames lists registered destination connectors, sorted.
func (r *Registry) DestinationNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
