package model

import (
	_ "crypto/sha256"
	"errors"
	"log/slog"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrInvalidDigest is returned, wrapped, by callers that reject a string
// which does not parse as a [Digest].
var ErrInvalidDigest = errors.New("invalid digest")

// Digest is the SHA-256 of a model blob. It is a comparable value type and
// is immutable, so it can be used directly as a map key.
//
// The zero Digest is not a valid digest.
type Digest struct {
	s string
}

// String returns the digest as 64 lowercase hex characters, or the empty
// string if the digest is invalid.
func (d Digest) String() string { return d.s }

// IsValid returns true if the digest is valid (not zero).
//
// A valid digest may be created only by ParseDigest.
func (d Digest) IsValid() bool { return d.s != "" }

// Short returns the first n hex characters of the digest.
func (d Digest) Short(n int) string {
	if n >= len(d.s) {
		return d.s
	}
	return d.s[:n]
}

// LogValue implements slog.LogValuer.
func (d Digest) LogValue() slog.Value {
	return slog.StringValue(d.String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var _ slog.LogValuer = Digest{}

// ParseDigest parses s in the form "sha256:<hex>", "sha256-<hex>" or bare
// "<hex>". Blob file names use the dash form, manifests use the colon form.
// Only lowercase sha256 digests are accepted; anything else returns the zero
// Digest.
func ParseDigest(s string) Digest {
	hex := s
	if typ, rest, ok := strings.Cut(s, "-"); ok {
		if typ != string(digest.SHA256) {
			return Digest{}
		}
		hex = rest
	} else if typ, rest, ok := strings.Cut(s, ":"); ok {
		if typ != string(digest.SHA256) {
			return Digest{}
		}
		hex = rest
	}

	if err := digest.NewDigestFromEncoded(digest.SHA256, hex).Validate(); err != nil {
		return Digest{}
	}

	return Digest{s: hex}
}

func MustParseDigest(s string) Digest {
	d := ParseDigest(s)
	if !d.IsValid() {
		panic("invalid digest: " + s)
	}
	return d
}
