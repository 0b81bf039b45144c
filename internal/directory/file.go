package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
)

// document is the on-disk layout: network -> component -> deployment.
type document map[string]map[string]deploy.Deployment

// File is a directory persisted as a single JSON document.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a directory backed by the JSON file at path. The file is
// created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) Record(_ context.Context, network string, d deploy.Deployment) error {
	if err := validate(network, d); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if doc[network] == nil {
		doc[network] = make(map[string]deploy.Deployment)
	}
	doc[network][d.Name] = d
	return f.save(doc)
}

func (f *File) Get(_ context.Context, network, name string) (deploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return deploy.Deployment{}, err
	}
	d, ok := doc[network][name]
	if !ok {
		return deploy.Deployment{}, fmt.Errorf("%w: %s on %s", ErrNotFound, name, network)
	}
	return d, nil
}

func (f *File) List(_ context.Context, network string) ([]deploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]deploy.Deployment, 0, len(doc[network]))
	for _, d := range doc[network] {
		out = append(out, d)
	}
	sortByName(out)
	return out, nil
}

func (f *File) load() (document, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(document), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	if len(data) == 0 {
		return make(document), nil
	}

	doc := make(document)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", f.path, err)
	}
	return doc, nil
}

// save writes to a temp file first, then renames for atomicity.
func (f *File) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal directory: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory dir: %w", err)
		}
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
