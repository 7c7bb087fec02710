package frames

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	// Register decoders beyond the standard library's jpeg and png.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageSet walks a directory tree and yields every decodable image file.
type ImageSet struct {
	paths   []string
	pos     int
	index   int
	logger  *slog.Logger
	skipped []string
}

// NewImageSet collects image files under dir in lexical order.
// isImage decides which file names are considered.
func NewImageSet(dir string, isImage func(string) bool, logger *slog.Logger) (*ImageSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, openError("image set "+dir, err)
	}
	if !info.IsDir() {
		return nil, openError("image set "+dir, fmt.Errorf("not a directory"))
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isImage(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, openError("image set "+dir, err)
	}
	return &ImageSet{paths: paths, logger: logger}, nil
}

// Len returns the number of candidate files.
func (s *ImageSet) Len() int { return len(s.paths) }

// Skipped returns files that could not be read or decoded so far.
func (s *ImageSet) Skipped() []string { return s.skipped }

// Next decodes the next image, skipping unreadable files.
func (s *ImageSet) Next(ctx context.Context) (Frame, error) {
	for s.pos < len(s.paths) {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		path := s.paths[s.pos]
		s.pos++

		f, err := LoadImage(path)
		if err != nil {
			s.logger.Warn("skipping unreadable image", "path", path, "error", err)
			s.skipped = append(s.skipped, path)
			continue
		}
		f.Index = s.index
		s.index++
		return f, nil
	}
	return Frame{}, io.EOF
}

// Close implements Source.
func (s *ImageSet) Close() error { return nil }

// LoadImage reads and decodes a single image file.
func LoadImage(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, openError("image "+path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, openError("image "+path, fmt.Errorf("decode: %w", err))
	}
	return Frame{Path: path, Image: img, Data: data}, nil
}
