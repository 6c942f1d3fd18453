package dataset

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sales-dashboard/internal/models"
)

const cacheVersion = "v3"

// Cache stores normalized load results as gob files so a restart can skip
// parsing an unchanged source.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

type cacheEntry struct {
	Version     string
	Schema      models.Schema
	Records     []models.Record
	Diagnostics Diagnostics
	SavedAt     time.Time
}

func (c *Cache) filename(sourcePath string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(sourcePath)
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

// Load returns the cached result for sourcePath if one exists and was saved
// after the source was last modified.
func (c *Cache) Load(sourcePath string) (*Result, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(c.filename(sourcePath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entry cacheEntry
	if err := gob.NewDecoder(file).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	if entry.Version != cacheVersion {
		return nil, fmt.Errorf("cache version %q, want %q", entry.Version, cacheVersion)
	}
	if !info.ModTime().Before(entry.SavedAt) {
		return nil, fmt.Errorf("cache older than source")
	}

	return &Result{
		Dataset:     models.NewDataset(entry.Schema, entry.Records),
		Diagnostics: entry.Diagnostics,
	}, nil
}

func (c *Cache) Save(sourcePath string, res *Result) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filename(sourcePath))
	if err != nil {
		return err
	}
	defer file.Close()

	entry := cacheEntry{
		Version:     cacheVersion,
		Schema:      res.Dataset.Schema(),
		Records:     res.Dataset.Records(),
		Diagnostics: res.Diagnostics,
		SavedAt:     time.Now(),
	}
	return gob.NewEncoder(file).Encode(entry)
}
