// Package filedata defines the record that identifies one source artifact
// across its entire pipeline journey. Records are constructed by an indexer,
// passed by value from stage to stage, and each stage returns an updated copy
// carrying its additions.
package filedata

import (
	"encoding/json"
	"fmt"
	"os"
)

// SourceIdentifiers locates the artifact well enough for a downloader to
// fetch it.
type SourceIdentifiers struct {
	Filename string `json:"filename"`
	Fullpath string `json:"fullpath"`
	RelPath  string `json:"rel_path,omitempty"`
}

// SourceMetadata is the accumulated, append-only record attached to an
// artifact. Every stage may fill fields but must not overwrite fields
// written by an earlier stage; Merge enforces that.
type SourceMetadata struct {
	URL           string            `json:"url,omitempty"`
	Version       string            `json:"version,omitempty"`
	RecordLocator map[string]string `json:"record_locator,omitempty"`
	DateCreated   string            `json:"date_created,omitempty"`
	DateModified  string            `json:"date_modified,omitempty"`
	DateProcessed string            `json:"date_processed,omitempty"`
	Permissions   string            `json:"permissions,omitempty"`
	FileSize      int64             `json:"filesize_bytes,omitempty"`
	FileType      string            `json:"filetype,omitempty"`

	// LocalPath is set by the downloader once raw content is materialized.
	LocalPath string `json:"local_path,omitempty"`

	// ParentIdentifier links an exploded child artifact (e.g. one table
	// row) back to the artifact it was derived from.
	ParentIdentifier string `json:"parent_identifier,omitempty"`
}

// FileData identifies one source artifact and carries its metadata through
// the stages.
type FileData struct {
	// Identifier is a stable opaque string unique within a source,
	// assigned by the indexer. Reprocessing re-derives the same identifier
	// for the same logical artifact.
	Identifier string `json:"identifier"`

	// ConnectorType names the source connector that produced this record.
	ConnectorType string `json:"connector_type,omitempty"`

	SourceIdentifiers SourceIdentifiers `json:"source_identifiers"`

	Metadata SourceMetadata `json:"metadata"`

	// AdditionalMetadata is a connector-specific payload, opaque to the
	// orchestrator and round-tripped through JSON unmodified.
	AdditionalMetadata map[string]any `json:"additional_metadata,omitempty"`
}

// Validate checks the invariants an indexer must establish.
func (fd FileData) Validate() error {
	if fd.Identifier == "" {
		return fmt.Errorf("file data missing identifier")
	}
	return nil
}

// Copy returns a deep copy so a stage can add metadata without aliasing the
// upstream record.
func (fd FileData) Copy() FileData {
	out := fd
	if fd.AdditionalMetadata != nil {
		out.AdditionalMetadata = make(map[string]any, len(fd.AdditionalMetadata))
		for k, v := range fd.AdditionalMetadata {
			out.AdditionalMetadata[k] = v
		}
	}
	if fd.Metadata.RecordLocator != nil {
		out.Metadata.RecordLocator = make(map[string]string, len(fd.Metadata.RecordLocator))
		for k, v := range fd.Metadata.RecordLocator {
			out.Metadata.RecordLocator[k] = v
		}
	}
	return out
}

// Merge returns fd with empty metadata fields filled from add. Fields already
// set on fd win: downstream stages append, they never overwrite.
func (fd FileData) Merge(add SourceMetadata) FileData {
	out := fd.Copy()
	m := &out.Metadata
	if m.URL == "" {
		m.URL = add.URL
	}
	if m.Version == "" {
		m.Version = add.Version
	}
	if m.RecordLocator == nil {
		m.RecordLocator = add.RecordLocator
	}
	if m.DateCreated == "" {
		m.DateCreated = add.DateCreated
	}
	if m.DateModified == "" {
		m.DateModified = add.DateModified
	}
	if m.DateProcessed == "" {
		m.DateProcessed = add.DateProcessed
	}
	if m.Permissions == "" {
		m.Permissions = add.Permissions
	}
	if m.FileSize == 0 {
		m.FileSize = add.FileSize
	}
	if m.FileType == "" {
		m.FileType = add.FileType
	}
	if m.LocalPath == "" {
		m.LocalPath = add.LocalPath
	}
	if m.ParentIdentifier == "" {
		m.ParentIdentifier = add.ParentIdentifier
	}
	return out
}

// WriteFile persists the record as JSON at path.
func (fd FileData) WriteFile(path string) error {
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal file data: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write file data: %w", err)
	}
	return nil
}

// ReadFile loads a record previously persisted with WriteFile.
func ReadFile(path string) (FileData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileData{}, fmt.Errorf("read file data: %w", err)
	}
	var fd FileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return FileData{}, fmt.Errorf("unmarshal file data: %w", err)
	}
	return fd, nil
}
