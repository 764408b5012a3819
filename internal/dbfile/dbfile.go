// Package dbfile implements the opt-in JSON database file replica.
package dbfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"harvester/internal/core"
	"harvester/internal/log"
)

// ReplicaName identifies the file in store errors and logs.
const ReplicaName = "database-file"

// File rewrites the whole document at Path on every save.
type File struct {
	path   string
	logger *log.Logger
}

func New(path string) *File {
	return &File{
		path:   path,
		logger: log.WithComponent(log.ComponentDBFile),
	}
}

func (f *File) Name() string { return ReplicaName }

func (f *File) Path() string { return f.path }

// Save writes doc through a temporary file in the same directory followed by
// a rename, so a reader never sees a half-written document.
func (f *File) Save(ctx context.Context, doc core.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}

	f.logger.DebugContext(ctx, "Database file written",
		log.FieldFile, f.path,
		log.FieldFarmers, len(doc.Farmers),
		log.FieldExpenses, len(doc.Expenses))
	return nil
}

// Read loads and validates the document at path. Both collections must be
// present.
func Read(path string) (core.Document, error) {
	if strings.TrimSpace(path) == "" {
		return core.Document{}, core.ErrUserCancelled
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Document{}, &core.PersistenceError{Replica: ReplicaName, Op: "read", Err: err}
	}
	doc, err := core.DecodeDocument(data)
	if err != nil {
		return core.Document{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// BackupName is the suggested file name for a shared backup taken at now.
func BackupName(now time.Time) string {
	return fmt.Sprintf("harvester_backup_%s.json", now.Format("2006-01-02"))
}
