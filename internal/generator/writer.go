package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	neuronsFile     = "neurons.json"
	connectionsFile = "connections.json"
)

// WriteDataset serializes the dataset into neurons.json and connections.json under the provided directory.
func WriteDataset(dataset Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, neuronsFile), dataset.Neurons); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, connectionsFile), dataset.Connections); err != nil {
		return err
	}
	return nil
}

// ReadDataset loads a dataset written by WriteDataset.
func ReadDataset(dir string) (Dataset, error) {
	var ds Dataset
	if err := readJSON(filepath.Join(dir, neuronsFile), &ds.Neurons); err != nil {
		return Dataset{}, err
	}
	if err := readJSON(filepath.Join(dir, connectionsFile), &ds.Connections); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
