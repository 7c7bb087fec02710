package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// EncodingVersion is the leading byte of every encoded embedding.
const EncodingVersion byte = 1

// encodedHeaderSize is the version byte plus a uint32 element count.
const encodedHeaderSize = 1 + 4

var errMalformedEncoding = errors.New("malformed embedding encoding")

// EncodeEmbedding serializes a vector as: version byte, uint32 length, then
// length little-endian float32 values. All backends store this form.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, encodedHeaderSize+4*len(v))
	buf[0] = EncodingVersion
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[encodedHeaderSize+4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding parses the output of EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) < encodedHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", errMalformedEncoding, len(b))
	}
	if b[0] != EncodingVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errMalformedEncoding, b[0])
	}
	n := int(binary.LittleEndian.Uint32(b[1:5]))
	if want := encodedHeaderSize + 4*n; len(b) != want {
		return nil, fmt.Errorf("%w: expected %d bytes for %d values, got %d", errMalformedEncoding, want, n, len(b))
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[encodedHeaderSize+4*i:]))
	}
	return v, nil
}
