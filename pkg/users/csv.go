package users

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Header is the first row of a users file.
var Header = []string{"user_id", "user_name"}

// ReadCSV parses a users file. The header row is optional; rows with fewer
// than two columns are skipped.
func ReadCSV(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	names := make(map[string]string)
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read users csv: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		if line == 1 && row[0] == Header[0] && row[1] == Header[1] {
			continue
		}
		names[row[0]] = row[1]
	}
	return NewDirectory(names), nil
}

// WriteCSV writes the directory sorted by id, header first.
func WriteCSV(w io.Writer, d *Directory) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write users csv: %w", err)
	}
	for _, id := range d.IDs() {
		name, _ := d.Lookup(id)
		if err := writer.Write([]string{id, name}); err != nil {
			return fmt.Errorf("write users csv: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadFile reads the users file at path.
func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// SaveFile writes the users file at path, creating parent directories. The
// file is replaced atomically.
func SaveFile(path string, d *Directory) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create users dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".users-*.csv")
	if err != nil {
		return fmt.Errorf("create users file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, d); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close users file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
