// Package netname parses and validates neural-network file names.
//
// Network files follow the naming convention nn-<digest>.nnue, where
// <digest> is the first 12 hex characters of the SHA-256 of the file's
// uncompressed content. The name is the integrity claim: everything the
// pipeline verifies starts from what this package extracts.
package netname

import (
	"strings"

	"github.com/netvault/netvault/internal/apierr"
)

const (
	// Prefix is the base identifier every network file name starts with.
	Prefix = "nn"

	// Ext is the single allowed extension for network files.
	Ext = ".nnue"

	// StoredExt is the extension appended to stored, compressed artifacts.
	StoredExt = ".gz"

	// DigestLen is the exact length of the hex digest token in a name.
	DigestLen = 12
)

// ParsedName is the validated decomposition of a claimed network file name.
// The Digest is always lowercase hex of length DigestLen.
type ParsedName struct {
	// Base is the base identifier (always Prefix for network files).
	Base string
	// Digest is the expected content digest token, lowercase hex.
	Digest string
	// Ext is the file extension including the leading dot.
	Ext string
}

// Name reconstructs the canonical (lowercase-digest) claimed file name.
func (p ParsedName) Name() string {
	return p.Base + "-" + p.Digest + p.Ext
}

// StoredName returns the content-addressed name the compressed artifact is
// stored under.
func (p ParsedName) StoredName() string {
	return p.Name() + StoredExt
}

// Parse extracts and validates the digest token and base identifier from an
// untrusted file name. It accepts uppercase or lowercase hex digits and
// normalizes the digest to lowercase. It is a pure function: no side effects,
// deterministic for a given input.
//
// Returns apierr.ErrMalformedFilename when the pattern does not match, the
// token length is wrong, or the token contains non-hexadecimal characters.
func Parse(filename string) (ParsedName, error) {
	rest, ok := strings.CutPrefix(filename, Prefix+"-")
	if !ok {
		return ParsedName{}, apierr.ErrMalformedFilename.WithMessage(
			"filename %q does not match expected pattern (%s-[0-9a-f]{%d}%s)",
			filename, Prefix, DigestLen, Ext)
	}
	token, ok := strings.CutSuffix(rest, Ext)
	if !ok {
		return ParsedName{}, apierr.ErrMalformedFilename.WithMessage(
			"filename %q does not have the %s extension", filename, Ext)
	}
	if len(token) != DigestLen {
		return ParsedName{}, apierr.ErrMalformedFilename.WithMessage(
			"digest token in %q has length %d, want %d", filename, len(token), DigestLen)
	}
	for _, c := range token {
		if !isHex(c) {
			return ParsedName{}, apierr.ErrMalformedFilename.WithMessage(
				"digest token in %q contains non-hexadecimal characters", filename)
		}
	}
	return ParsedName{
		Base:   Prefix,
		Digest: strings.ToLower(token),
		Ext:    Ext,
	}, nil
}

// ParseStored parses the on-disk name of a stored artifact
// (nn-<digest>.nnue.gz). Used when reconciling the storage directory into
// the registry on startup.
func ParseStored(storedName string) (ParsedName, error) {
	inner, ok := strings.CutSuffix(storedName, StoredExt)
	if !ok {
		return ParsedName{}, apierr.ErrMalformedFilename.WithMessage(
			"stored name %q does not have the %s extension", storedName, StoredExt)
	}
	return Parse(inner)
}

func isHex(c rune) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'f':
		return true
	case c >= 'A' && c <= 'F':
		return true
	}
	return false
}
