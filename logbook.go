package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrHeaderMismatch is returned when an existing logbook was written with a
// different column layout.
var ErrHeaderMismatch = errors.New("logbook header mismatch")

// Logbook is an append-only CSV file with one row per flight.
type Logbook struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenLogbook opens path for appending, writing the header if the file is
// new or empty.
func OpenLogbook(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create logbook dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open logbook: %w", err)
	}

	header, err := csv.NewReader(file).Read()
	switch {
	case errors.Is(err, io.EOF):
		w := csv.NewWriter(file)
		w.Write(logbookHeader)
		w.Flush()
		if err := w.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	case err != nil:
		file.Close()
		return nil, fmt.Errorf("read header: %w", err)
	case !slices.Equal(header, logbookHeader):
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrHeaderMismatch, path)
	}

	return &Logbook{path: path, file: file}, nil
}

func (l *Logbook) Path() string {
	return l.path
}

// Append writes one record and syncs it to disk.
func (l *Logbook) Append(r FlightRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := csv.NewWriter(l.file)
	w.Write(r.Row())
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync logbook: %w", err)
	}
	return nil
}

func (l *Logbook) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
