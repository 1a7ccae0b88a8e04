package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer writes CSV with every field quoted, comma separated, one record per
// "\n" terminated line.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a quote-all writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes one record.
func (w *Writer) Write(record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := w.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := w.w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := w.w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := w.w.WriteByte('"'); err != nil {
			return err
		}
	}
	return w.w.WriteByte('\n')
}

// WriteAll writes records in order.
func (w *Writer) WriteAll(records [][]string) error {
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// File is a CSV output file shared by concurrent exporters. Rows handed to one
// WriteRows call are never interleaved with other rows.
type File struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *Writer
	rows   int
}

// CreateFile creates path and writes header as its first row.
func CreateFile(path string, header []string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	out := &File{path: path, file: f, writer: NewWriter(f)}
	if err := out.writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return out, nil
}

// WriteRows appends rows.
func (f *File) WriteRows(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	f.rows += len(rows)
	return nil
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Rows returns the number of data rows written.
func (f *File) Rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows
}

// Close flushes and closes the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writer.Flush(); err != nil {
		f.file.Close()
		return fmt.Errorf("flush %s: %w", f.path, err)
	}
	return f.file.Close()
}
