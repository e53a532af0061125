// Package integrity computes and verifies content digests for network files.
//
// The digest of a network file is the first 12 hex characters of the SHA-256
// of its uncompressed bytes, matching the token embedded in the file name.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/netvault/netvault/internal/apierr"
	"github.com/netvault/netvault/internal/netname"
)

// VerifiedContent holds content whose digest has been checked against the
// digest claimed by its file name. It only exists after that check passed.
type VerifiedContent struct {
	// Data is the raw, uncompressed content.
	Data []byte
	// Size is the content length in bytes.
	Size int64
	// Digest is the computed digest, lowercase hex, netname.DigestLen chars.
	Digest string
}

// Digest returns the digest token for the given content: the SHA-256 hex
// digest truncated to netname.DigestLen characters.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:netname.DigestLen]
}

// DigestReader consumes r to EOF in a single pass and returns the digest
// token and the number of bytes read. The content itself is discarded.
func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:netname.DigestLen], n, nil
}

// Verify reads the full content stream exactly once, computes its digest,
// and compares it case-insensitively against the expected token. The content
// is buffered so later pipeline stages can reuse it without a second read.
//
// Returns apierr.ErrEmptyContent when the stream yields zero bytes and
// apierr.ErrHashMismatch when the digests differ. No byte reaches persistent
// storage before this check passes.
func Verify(r io.Reader, expected string) (VerifiedContent, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(r, h))
	if err != nil {
		return VerifiedContent{}, fmt.Errorf("reading upload stream: %w", err)
	}
	if len(data) == 0 {
		return VerifiedContent{}, apierr.ErrEmptyContent
	}

	digest := hex.EncodeToString(h.Sum(nil))[:netname.DigestLen]
	if !strings.EqualFold(digest, expected) {
		return VerifiedContent{}, apierr.ErrHashMismatch.WithMessage(
			"content digest %s does not match claimed digest %s", digest, strings.ToLower(expected))
	}

	return VerifiedContent{
		Data:   data,
		Size:   int64(len(data)),
		Digest: digest,
	}, nil
}
