package covid

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/pdftable"
)

// WriteCSV caches parsed report rows at path. An existing file is left
// untouched and false is returned.
func WriteCSV(path string, records []domain.PahoRecord) (bool, error) {
	if pdftable.Exists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".csv-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&records, tmp); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return true, nil
}

// ReadCSV loads report rows cached by WriteCSV.
func ReadCSV(path string) ([]domain.PahoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var records []domain.PahoRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return records, nil
}
