package netname

import (
	"errors"
	"strings"
	"testing"

	"github.com/netvault/netvault/internal/apierr"
)

func TestParseValid(t *testing.T) {
	p, err := Parse("nn-0123456789ab.nnue")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Base != "nn" {
		t.Errorf("Base = %q, want %q", p.Base, "nn")
	}
	if p.Digest != "0123456789ab" {
		t.Errorf("Digest = %q, want %q", p.Digest, "0123456789ab")
	}
	if p.Ext != ".nnue" {
		t.Errorf("Ext = %q, want %q", p.Ext, ".nnue")
	}
	if got := p.Name(); got != "nn-0123456789ab.nnue" {
		t.Errorf("Name() = %q", got)
	}
	if got := p.StoredName(); got != "nn-0123456789ab.nnue.gz" {
		t.Errorf("StoredName() = %q", got)
	}
}

func TestParseNormalizesUppercase(t *testing.T) {
	p, err := Parse("nn-ABCDEF012345.nnue")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Digest != "abcdef012345" {
		t.Errorf("Digest = %q, want lowercase", p.Digest)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name     string
		filename string
	}{
		{"empty", ""},
		{"no prefix", "xx-0123456789ab.nnue"},
		{"missing dash", "nn0123456789ab.nnue"},
		{"wrong extension", "nn-0123456789ab.bin"},
		{"no extension", "nn-0123456789ab"},
		{"token too short", "nn-0123456789.nnue"},
		{"token too long", "nn-0123456789abcd.nnue"},
		{"non-hex token", "nn-0123456789zz.nnue"},
		{"path traversal", "../nn-0123456789ab.nnue"},
		{"trailing junk", "nn-0123456789ab.nnue.exe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.filename)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tc.filename)
			}
			if !errors.Is(err, apierr.ErrMalformedFilename) {
				t.Errorf("Parse(%q) error = %v, want MalformedFilename", tc.filename, err)
			}
		})
	}
}

func TestParseIsPure(t *testing.T) {
	// Same input, same output, twice.
	a, errA := Parse("nn-deadbeef0123.nnue")
	b, errB := Parse("nn-deadbeef0123.nnue")
	if errA != nil || errB != nil {
		t.Fatalf("Parse failed: %v / %v", errA, errB)
	}
	if a != b {
		t.Errorf("Parse not deterministic: %+v vs %+v", a, b)
	}
}

func TestParseStored(t *testing.T) {
	p, err := ParseStored("nn-0123456789ab.nnue.gz")
	if err != nil {
		t.Fatalf("ParseStored failed: %v", err)
	}
	if p.Digest != "0123456789ab" {
		t.Errorf("Digest = %q", p.Digest)
	}

	if _, err := ParseStored("nn-0123456789ab.nnue"); err == nil {
		t.Error("ParseStored accepted a name without .gz")
	}
	if _, err := ParseStored(strings.Repeat("x", 40)); err == nil {
		t.Error("ParseStored accepted garbage")
	}
}
