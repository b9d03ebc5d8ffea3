package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// DocumentFormat is the versioned on-disk format written by Save.
const DocumentFormat = 2

// Document is the versioned persisted shape.
type Document struct {
	Format    int              `json:"format"`
	Workspace json.RawMessage  `json:"workspace"`
	Metadata  DocumentMetadata `json:"metadata"`
}

// DocumentMetadata carries the names a document was saved with.
type DocumentMetadata struct {
	Toolbox string `json:"toolbox,omitempty"`
	Kernel  string `json:"kernel,omitempty"`
}

// LoadResult is the live state recovered from a document. Toolbox and
// Kernel are only set when they resolve; anything that did not is listed in
// Warnings.
type LoadResult struct {
	Workspace json.RawMessage
	Legacy    bool
	Toolbox   string
	Kernel    string
	Warnings  []error
}

// DocumentMapper converts between persisted documents and manager state.
type DocumentMapper struct {
	registry *Registry
	session  SessionProvider
	logger   *zap.Logger
}

// NewDocumentMapper builds a mapper validating names against the registry
// and the session's kernelspec catalog.
func NewDocumentMapper(registry *Registry, session SessionProvider, logger *zap.Logger) *DocumentMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentMapper{registry: registry, session: session, logger: logger}
}

// Load parses a persisted document. Legacy documents (no format, top-level
// "blocks") are the workspace state themselves. Any format other than legacy
// or DocumentFormat fails with ErrUnsupportedFormat. Empty input is a new,
// empty document.
func (d *DocumentMapper) Load(data []byte) (*LoadResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &LoadResult{}, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	rawFormat, hasFormat := fields["format"]
	if hasFormat && string(bytes.TrimSpace(rawFormat)) == "null" {
		hasFormat = false
	}
	if !hasFormat {
		if _, ok := fields["blocks"]; !ok {
			return nil, fmt.Errorf("%w: missing format and blocks", ErrUnsupportedFormat)
		}
		return &LoadResult{
			Workspace: append(json.RawMessage(nil), data...),
			Legacy:    true,
		}, nil
	}
	var format float64
	if err := json.Unmarshal(rawFormat, &format); err != nil || format != DocumentFormat {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, bytes.TrimSpace(rawFormat))
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	result := &LoadResult{Workspace: doc.Workspace}
	if name := doc.Metadata.Toolbox; name != "" {
		if d.registry != nil && d.registry.HasToolbox(name) {
			result.Toolbox = name
		} else {
			result.Warnings = append(result.Warnings, fmt.Errorf("%w: %q", ErrUnknownToolbox, name))
		}
	}
	if name := doc.Metadata.Kernel; name != "" && name != NoKernel {
		if d.kernelKnown(name) {
			result.Kernel = name
		} else {
			result.Warnings = append(result.Warnings, fmt.Errorf("%w: %q", ErrUnknownKernel, name))
		}
	}
	for _, w := range result.Warnings {
		d.logger.Warn("document metadata not applied", zap.Error(w))
	}
	return result, nil
}

// Save serializes the workspace and manager state in DocumentFormat.
func (d *DocumentMapper) Save(workspace json.RawMessage, state ManagerState) ([]byte, error) {
	if len(bytes.TrimSpace(workspace)) == 0 {
		workspace = json.RawMessage("{}")
	}
	kernel := state.Kernel.Name
	if kernel == "" {
		kernel = NoKernel
	}
	doc := Document{
		Format:    DocumentFormat,
		Workspace: workspace,
		Metadata: DocumentMetadata{
			Toolbox: state.Toolbox,
			Kernel:  kernel,
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Restore loads a document and applies its toolbox and kernel through the
// manager. Failures to apply are appended to the result's warnings; only an
// unreadable or unsupported document returns an error.
func (d *DocumentMapper) Restore(ctx context.Context, data []byte, manager *Manager) (*LoadResult, error) {
	result, err := d.Load(data)
	if err != nil {
		return nil, err
	}
	if manager == nil {
		return result, nil
	}
	if result.Toolbox != "" {
		if err := manager.SetToolbox(result.Toolbox); err != nil {
			result.Warnings = append(result.Warnings, err)
		}
	}
	if result.Kernel != "" {
		if err := manager.SelectKernel(ctx, result.Kernel); err != nil {
			d.logger.Warn("kernel request failed", zap.String("kernel", result.Kernel), zap.Error(err))
			result.Warnings = append(result.Warnings, err)
		}
	}
	return result, nil
}

func (d *DocumentMapper) kernelKnown(name string) bool {
	if d.session == nil {
		return false
	}
	_, ok := d.session.KernelSpecs()[name]
	return ok
}
