// Package compress produces the gzip representation of verified network
// files before they are persisted.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/netvault/netvault/internal/apierr"
)

// Compressor turns verified content into a standard gzip stream at a fixed
// compression level. The level is configuration, never data-dependent, so
// the output is deterministic for a given input.
type Compressor struct {
	level int
}

// New creates a Compressor with the given gzip level. Levels outside the
// valid gzip range are an error.
func New(level int) (*Compressor, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level %d out of range [%d, %d]", level, gzip.BestSpeed, gzip.BestCompression)
	}
	return &Compressor{level: level}, nil
}

// Compressed holds a gzip-compressed artifact ready for the storage writer.
type Compressed struct {
	// Data is the complete gzip stream.
	Data []byte
	// Size is len(Data), the compressed size in bytes.
	Size int64
}

// Compress encodes data as a gzip stream. No header metadata (name, mtime)
// is written, keeping the output byte-identical across runs.
//
// Returns apierr.ErrCompressionIO when the encoder cannot write or flush;
// this is a server-side fault, not a client error.
func (c *Compressor) Compress(data []byte) (Compressed, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return Compressed{}, apierr.ErrCompressionIO.WithMessage("creating gzip encoder: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		return Compressed{}, apierr.ErrCompressionIO.WithMessage("compressing content: %v", err)
	}
	if err := zw.Close(); err != nil {
		return Compressed{}, apierr.ErrCompressionIO.WithMessage("flushing gzip encoder: %v", err)
	}
	return Compressed{
		Data: buf.Bytes(),
		Size: int64(buf.Len()),
	}, nil
}

// Decompress reads a gzip stream to completion and returns the original
// bytes. Used for duplicate verification and round-trip checks.
func Decompress(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing gzip stream: %w", err)
	}
	return data, nil
}
