package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDocumentStore persists documents in a SQLite database.
type SQLiteDocumentStore struct {
	db *sql.DB
}

// NewSQLiteDocumentStore opens/creates the database at dbPath.
func NewSQLiteDocumentStore(dbPath string) (*SQLiteDocumentStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite document store path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	store := &SQLiteDocumentStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteDocumentStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		toolbox TEXT,
		kernel TEXT,
		updated_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_name ON documents(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteDocumentStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts a document, assigning an id when it has none.
func (s *SQLiteDocumentStore) Save(ctx context.Context, doc *StoredDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	ensureID(doc)
	doc.UpdatedAt = time.Now().UTC()
	query := `
	INSERT INTO documents (id, name, content, toolbox, kernel, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name=excluded.name,
		content=excluded.content,
		toolbox=excluded.toolbox,
		kernel=excluded.kernel,
		updated_at=excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID, doc.Name, string(doc.Content), doc.Toolbox, doc.Kernel, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// Load retrieves a document by id.
func (s *SQLiteDocumentStore) Load(ctx context.Context, id string) (*StoredDocument, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, content, toolbox, kernel, updated_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// List returns all documents ordered by name.
func (s *SQLiteDocumentStore) List(ctx context.Context) ([]StoredDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, content, toolbox, kernel, updated_at FROM documents ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []StoredDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Delete removes a document.
func (s *SQLiteDocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*StoredDocument, error) {
	var (
		doc     StoredDocument
		content string
		toolbox sql.NullString
		kernel  sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(&doc.ID, &doc.Name, &content, &toolbox, &kernel, &updated); err != nil {
		return nil, err
	}
	doc.Content = []byte(content)
	doc.Toolbox = toolbox.String
	doc.Kernel = kernel.String
	if updated.Valid {
		doc.UpdatedAt = updated.Time.UTC()
	}
	return &doc, nil
}
