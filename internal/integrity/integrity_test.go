package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/netvault/netvault/internal/apierr"
)

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

func TestVerifyMatch(t *testing.T) {
	content := []byte("test neural network data")
	vc, err := Verify(bytes.NewReader(content), digestOf(content))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !bytes.Equal(vc.Data, content) {
		t.Error("verified data differs from input")
	}
	if vc.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", vc.Size, len(content))
	}
	if vc.Digest != digestOf(content) {
		t.Errorf("Digest = %q, want %q", vc.Digest, digestOf(content))
	}
}

func TestVerifyCaseInsensitive(t *testing.T) {
	content := []byte("case insensitive comparison")
	expected := strings.ToUpper(digestOf(content))
	vc, err := Verify(bytes.NewReader(content), expected)
	if err != nil {
		t.Fatalf("Verify with uppercase expected digest failed: %v", err)
	}
	if vc.Digest != strings.ToLower(expected) {
		t.Errorf("computed digest %q not lowercase of %q", vc.Digest, expected)
	}
}

func TestVerifyMismatch(t *testing.T) {
	content := []byte("test neural network data")
	_, err := Verify(bytes.NewReader(content), "ffffffffffff")
	if !errors.Is(err, apierr.ErrHashMismatch) {
		t.Fatalf("Verify error = %v, want HashMismatch", err)
	}
}

func TestVerifyEmpty(t *testing.T) {
	_, err := Verify(bytes.NewReader(nil), "000000000000")
	if !errors.Is(err, apierr.ErrEmptyContent) {
		t.Fatalf("Verify error = %v, want EmptyContent", err)
	}
}

func TestDigestMatchesDigestReader(t *testing.T) {
	content := []byte{0x01, 0x02, 0x03, 0xff}
	want := Digest(content)

	got, n, err := DigestReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("DigestReader failed: %v", err)
	}
	if got != want {
		t.Errorf("DigestReader = %q, Digest = %q", got, want)
	}
	if n != int64(len(content)) {
		t.Errorf("n = %d, want %d", n, len(content))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("mocked read failure")
}

func TestVerifyReadError(t *testing.T) {
	_, err := Verify(failingReader{}, "000000000000")
	if err == nil {
		t.Fatal("Verify succeeded on failing reader")
	}
	if errors.Is(err, apierr.ErrHashMismatch) || errors.Is(err, apierr.ErrEmptyContent) {
		t.Errorf("read failure misclassified as client error: %v", err)
	}
}
