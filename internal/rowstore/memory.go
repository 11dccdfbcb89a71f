package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps sheets in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	sheets map[string][][]any
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sheets: make(map[string][][]any)}
}

// EnsureSheet creates name with headers as row 1 unless it already exists.
func (m *MemoryBackend) EnsureSheet(_ context.Context, name string, headers []string) (Sheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rows, ok := m.sheets[name]; ok {
		var stored []string
		if len(rows) > 0 {
			stored = headerNames(rows[0])
		}
		return Sheet{Name: name, Headers: stored}, nil
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	m.sheets[name] = [][]any{header}
	return Sheet{Name: name, Headers: append([]string(nil), headers...), Created: true}, nil
}

// Rows returns a copy of every row, header first.
func (m *MemoryBackend) Rows(_ context.Context, name string) ([][]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrSheetNotFound)
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = append([]any(nil), row...)
	}
	return out, nil
}

// WriteRow replaces the cells at position.
func (m *MemoryBackend) WriteRow(_ context.Context, name string, position int, cells []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.sheets[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrSheetNotFound)
	}
	if position <= HeaderRow || position > len(rows) {
		return fmt.Errorf("%s row %d: %w", name, position, ErrRowOutOfRange)
	}
	rows[position-1] = append([]any(nil), cells...)
	return nil
}

// AppendRow adds cells after the last row.
func (m *MemoryBackend) AppendRow(_ context.Context, name string, cells []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.sheets[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrSheetNotFound)
	}
	m.sheets[name] = append(rows, append([]any(nil), cells...))
	return nil
}

// DeleteRow removes the row at position, shifting later rows up.
func (m *MemoryBackend) DeleteRow(_ context.Context, name string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.sheets[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrSheetNotFound)
	}
	if position <= HeaderRow || position > len(rows) {
		return fmt.Errorf("%s row %d: %w", name, position, ErrRowOutOfRange)
	}
	m.sheets[name] = append(rows[:position-1], rows[position:]...)
	return nil
}

// Put replaces a sheet wholesale, header row included. Used to load fixtures.
func (m *MemoryBackend) Put(name string, rows [][]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([][]any, len(rows))
	for i, row := range rows {
		copied[i] = append([]any(nil), row...)
	}
	m.sheets[name] = copied
}
