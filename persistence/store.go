package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store drivers accepted by OpenDocumentStore.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// OpenDocumentStore opens a store for the configured driver. The file
// driver treats path as a directory, the sqlite driver as a database file.
func OpenDocumentStore(driver, path string) (DocumentStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFile:
		return NewFileDocumentStore(path)
	case DriverSQLite, "sqlite3":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return NewSQLiteDocumentStore(path)
	default:
		return nil, fmt.Errorf("unknown document store driver %q", driver)
	}
}
