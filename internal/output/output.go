// Package output writes record lists as JSON array files.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"etfscraper/internal/provider"
)

// WriteError is a failure to persist one output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// Writer writes <Dir>/<name>.json, or <name>_YYYYMMDD_HHMMSS.json when
// Timestamped is set. Existing files are replaced.
type Writer struct {
	Dir         string
	Timestamped bool
	// Now stamps file names; time.Now when nil.
	Now func() time.Time
}

// Path returns where Write puts name.
func (w *Writer) Path(name string) string {
	file := name
	if w.Timestamped {
		now := time.Now
		if w.Now != nil {
			now = w.Now
		}
		file += "_" + now().Format("20060102_150405")
	}
	return filepath.Join(w.Dir, file+".json")
}

// Write serializes records with two-space indentation and a trailing
// newline. The same records always produce the same bytes.
func (w *Writer) Write(name string, records []provider.Record) (string, error) {
	path := w.Path(name)
	b, err := Encode(records)
	if err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return path, &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	return path, nil
}

// Encode renders records as the JSON array Write stores. HTML characters in
// names are kept as is. An empty list is "[]".
func Encode(records []provider.Record) ([]byte, error) {
	if records == nil {
		records = []provider.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return buf.Bytes(), nil
}
