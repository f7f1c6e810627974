package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/neurotrace/connectome/internal/domain"
)

// FileStore keeps results under root/{run}/{id}_downstreampartners.csv.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{root: dir}
}

// Dir returns the directory holding a run's results.
func (s *FileStore) Dir(run string) string {
	return filepath.Join(s.root, run)
}

func (s *FileStore) List(_ context.Context, run string) ([]domain.NeuronID, error) {
	if err := CheckRun(run); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir(run))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Dir(run), err)
	}

	ids := make([]domain.NeuronID, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := ParseFileName(entry.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Write replaces the neuron's file atomically via a temporary file and rename.
func (s *FileStore) Write(_ context.Context, run string, table domain.PartnerTable) error {
	if err := CheckRun(run); err != nil {
		return err
	}
	dir := s.Dir(run)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var buf bytes.Buffer
	if err := EncodeTable(&buf, table); err != nil {
		return fmt.Errorf("encode result %d: %w", table.Neuron, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write result %d: %w", table.Neuron, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close result %d: %w", table.Neuron, err)
	}

	path := filepath.Join(dir, FileName(table.Neuron))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) Read(_ context.Context, run string, id domain.NeuronID) (domain.PartnerTable, error) {
	if err := CheckRun(run); err != nil {
		return domain.PartnerTable{}, err
	}
	path := filepath.Join(s.Dir(run), FileName(id))
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.PartnerTable{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return domain.PartnerTable{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return DecodeTable(file, id)
}
