package results

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
)

// FileWriter writes result files atomically: readers see either the old
// file or the complete new one.
type FileWriter struct {
	Dir      string // joined with relative names; empty uses names as given
	Compress bool
}

// Path returns the file a result list named name is written to.
func (w FileWriter) Path(name string) string {
	p := name
	if w.Dir != "" && !filepath.IsAbs(name) {
		p = filepath.Join(w.Dir, name)
	}
	if w.Compress && !strings.HasSuffix(p, CompressedExt) {
		p += CompressedExt
	}
	return p
}

// Write implements Writer.
func (w FileWriter) Write(_ context.Context, name string, recs []Record) (string, error) {
	data, err := Encode(recs, w.Compress)
	if err != nil {
		return "", err
	}
	path := w.Path(name)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating results directory: %w", err)
		}
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing results %s: %w", path, err)
	}
	return path, nil
}
