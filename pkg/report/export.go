package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Export writes h as zstd-compressed JSON.
func Export(w io.Writer, h *History) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(h); err != nil {
		enc.Close()
		return fmt.Errorf("export: encode: %w", err)
	}
	return enc.Close()
}

// Import reads a history written by Export.
func Import(r io.Reader) (*History, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var h History
	if err := json.NewDecoder(dec).Decode(&h); err != nil {
		return nil, fmt.Errorf("import: decode: %w", err)
	}
	return &h, nil
}

// WriteFile atomically writes the export of h to path.
func WriteFile(path string, h *History) error {
	var buf bytes.Buffer
	if err := Export(&buf, h); err != nil {
		return err
	}
	return writeAtomic(path, buf.Bytes())
}

// ReadFile imports the history stored at path.
func ReadFile(path string) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	defer f.Close()
	return Import(f)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: tmpfile: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: close: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: chmod: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", path, err)
	}
	return nil
}
