// Package persistence stores block documents on disk or in SQLite.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexcodex/blockkernel/framework"
)

// StoredDocument is a saved block document plus the names it was saved with.
type StoredDocument struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Content   json.RawMessage `json:"content"`
	Toolbox   string          `json:"toolbox,omitempty"`
	Kernel    string          `json:"kernel,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewStoredDocument wraps serialized document bytes. Toolbox and kernel are
// read from versioned documents; legacy ones leave them empty.
func NewStoredDocument(name string, content []byte) *StoredDocument {
	doc := &StoredDocument{
		Name:    name,
		Content: append(json.RawMessage(nil), content...),
	}
	var versioned framework.Document
	if err := json.Unmarshal(content, &versioned); err == nil && versioned.Format == framework.DocumentFormat {
		doc.Toolbox = versioned.Metadata.Toolbox
		if versioned.Metadata.Kernel != framework.NoKernel {
			doc.Kernel = versioned.Metadata.Kernel
		}
	}
	return doc
}

// DocumentStore persists documents between runs.
type DocumentStore interface {
	Save(ctx context.Context, doc *StoredDocument) error
	Load(ctx context.Context, id string) (*StoredDocument, bool, error)
	List(ctx context.Context) ([]StoredDocument, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ensureID assigns a fresh id to documents saved for the first time.
func ensureID(doc *StoredDocument) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
}

func sortDocuments(docs []StoredDocument) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Name != docs[j].Name {
			return docs[i].Name < docs[j].Name
		}
		return docs[i].ID < docs[j].ID
	})
}

// FileDocumentStore keeps documents in one JSON file.
type FileDocumentStore struct {
	path  string
	mu    sync.RWMutex
	cache map[string]StoredDocument
}

// NewFileDocumentStore creates a store under the provided directory.
func NewFileDocumentStore(root string) (*FileDocumentStore, error) {
	if root == "" {
		return nil, errors.New("document store root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	store := &FileDocumentStore{
		path:  filepath.Join(root, "documents.json"),
		cache: make(map[string]StoredDocument),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileDocumentStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var docs []StoredDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return err
	}
	for _, doc := range docs {
		s.cache[doc.ID] = doc
	}
	return nil
}

func (s *FileDocumentStore) persist() error {
	docs := make([]StoredDocument, 0, len(s.cache))
	for _, doc := range s.cache {
		docs = append(docs, doc)
	}
	sortDocuments(docs)
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Save writes a document, assigning an id when it has none.
func (s *FileDocumentStore) Save(ctx context.Context, doc *StoredDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(doc)
	doc.UpdatedAt = time.Now().UTC()
	s.cache[doc.ID] = *doc
	return s.persist()
}

// Load retrieves a document by id.
func (s *FileDocumentStore) Load(ctx context.Context, id string) (*StoredDocument, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.cache[id]
	if !ok {
		return nil, false, nil
	}
	return &doc, true, nil
}

// List returns all documents ordered by name.
func (s *FileDocumentStore) List(ctx context.Context) ([]StoredDocument, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]StoredDocument, 0, len(s.cache))
	for _, doc := range s.cache {
		result = append(result, doc)
	}
	sortDocuments(result)
	return result, nil
}

// Delete removes a document.
func (s *FileDocumentStore) Delete(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, id)
	return s.persist()
}

// Close is a no-op; every mutation is already on disk.
func (s *FileDocumentStore) Close() error { return nil }
