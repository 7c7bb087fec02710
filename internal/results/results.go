// Package results serializes per-face processing results and persists them
// to local files, Amazon S3 or MinIO.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedExt is appended to names of zstd-compressed result files.
const CompressedExt = ".zst"

// Record is the outcome for one detected face. Frame and Timestamp are set
// for video and stream results only.
type Record struct {
	Frame      *int     `json:"frame,omitempty"`
	Timestamp  *float64 `json:"timestamp,omitempty"`
	BBox       [4]int   `json:"bbox"`
	DetScore   float64  `json:"det_score"`
	Matched    bool     `json:"matched"`
	PersonID   string   `json:"person_id"`
	PersonName string   `json:"person_name"`
	Similarity float64  `json:"similarity"`

	// Candidates lists further matches above the threshold when more than one was requested.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Candidate is a ranked watchlist match.
type Candidate struct {
	PersonID   string  `json:"person_id"`
	PersonName string  `json:"person_name"`
	Similarity float64 `json:"similarity"`
}

// Writer persists a result list under name and returns where it went.
type Writer interface {
	Write(ctx context.Context, name string, recs []Record) (string, error)
}

// Encode renders recs as an indented JSON array, zstd-compressed when compress is set.
func Encode(recs []Record, compress bool) ([]byte, error) {
	if recs == nil {
		recs = []Record{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding results: %w", err)
	}
	if !compress {
		return data, nil
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("compressing results: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("compressing results: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode, detecting compression from the zstd magic number.
func Decode(data []byte) ([]Record, error) {
	if isZstd(data) {
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		plain, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("decompressing results: %w", err)
		}
		data = plain
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return recs, nil
}

func isZstd(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x28 && data[1] == 0xB5 && data[2] == 0x2F && data[3] == 0xFD
}

// Load reads a result file written by FileWriter.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	return Decode(data)
}

// Multi writes to every writer and returns the first location.
// Failures are joined; a later writer still runs when an earlier one fails.
type Multi []Writer

// Write implements Writer.
func (m Multi) Write(ctx context.Context, name string, recs []Record) (string, error) {
	var (
		first string
		errs  []error
	)
	for _, w := range m {
		loc, err := w.Write(ctx, name, recs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if first == "" {
			first = loc
		}
	}
	return first, errors.Join(errs...)
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(name, "/")
}
