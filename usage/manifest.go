package usage

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/ollama/ollama-usage/types/model"
)

// Index maps a blob digest to every manifest entry that references it,
// sorted by display name.
type Index map[model.Digest][]Entry

// IndexManifests builds an Index from decoded manifests. A manifest without
// a model layer is skipped silently. A malformed manifest is skipped and
// reported as a *ManifestError; it never stops the others from being
// indexed.
func IndexManifests(docs []Document) (Index, []error) {
	index := make(Index)
	var errs []error
	for _, doc := range docs {
		e, ok, err := parseManifest(doc)
		if err != nil {
			errs = append(errs, &ManifestError{Path: doc.Path, Err: err})
			continue
		}
		if !ok {
			slog.Debug("manifest has no model layer", "path", doc.Path)
			continue
		}

		if !slices.Contains(index[e.Digest], e) {
			index[e.Digest] = append(index[e.Digest], e)
		}
	}

	for _, entries := range index {
		slices.SortFunc(entries, compareEntries)
	}

	return index, errs
}

// Lookup returns the entries for d, or nil if no manifest references it.
func (idx Index) Lookup(d model.Digest) []Entry {
	return idx[d]
}

func compareEntries(a, b Entry) int {
	return cmp.Or(
		cmp.Compare(a.Name.DisplayShortest(), b.Name.DisplayShortest()),
		cmp.Compare(a.Name.Host, b.Name.Host),
		cmp.Compare(a.Size, b.Size),
	)
}

// layer is the part of a manifest layer this package reads. Pointer fields
// distinguish a missing key from a zero value.
type layer struct {
	MediaType string  `mapstructure:"mediaType"`
	Digest    *string `mapstructure:"digest"`
	Size      *uint64 `mapstructure:"size"`
}

// parseManifest reports ok=false for a well-formed manifest with no model
// layer.
func parseManifest(doc Document) (e Entry, ok bool, err error) {
	m, isMap := doc.Value.(map[string]any)
	if !isMap {
		return Entry{}, false, fmt.Errorf("%w: not an object", ErrMalformedManifest)
	}

	layers, isSlice := m["layers"].([]any)
	if !isSlice {
		return Entry{}, false, fmt.Errorf("%w: missing layers", ErrMalformedManifest)
	}

	raw := modelLayer(layers)
	if raw == nil {
		return Entry{}, false, nil
	}

	var l layer
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: sizeHook,
		Result:     &l,
	})
	if err != nil {
		return Entry{}, false, err
	}

	if err := dec.Decode(raw); err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}

	if l.Digest == nil {
		return Entry{}, false, fmt.Errorf("%w: model layer has no digest", ErrMalformedManifest)
	}
	if l.Size == nil {
		return Entry{}, false, fmt.Errorf("%w: model layer has no size", ErrMalformedManifest)
	}

	d := model.ParseDigest(*l.Digest)
	if !d.IsValid() {
		return Entry{}, false, fmt.Errorf("%w: %w: %q", ErrMalformedManifest, ErrInvalidDigest, *l.Digest)
	}

	n, err := model.ParseNameFromFilepath(doc.Path)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %w", ErrMalformedManifest, err)
	}

	return Entry{Name: n, Digest: d, Size: *l.Size}, true, nil
}

// modelLayer returns the first layer object with the model media type.
func modelLayer(layers []any) map[string]any {
	for _, l := range layers {
		m, ok := l.(map[string]any)
		if !ok {
			continue
		}
		if mt, _ := m["mediaType"].(string); mt == ModelMediaType {
			return m
		}
	}
	return nil
}

var errSize = errors.New("size is not a non-negative integer")

// sizeHook converts the JSON number forms a decoder may produce into a
// uint64, rejecting fractions, negatives and non-numbers.
func sizeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Uint64 {
		return data, nil
	}

	switch v := data.(type) {
	case uint64:
		return v, nil
	case int:
		if v < 0 {
			return nil, errSize
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return nil, errSize
		}
		return uint64(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			return nil, errSize
		}
		return uint64(v), nil
	case fmt.Stringer:
		// json.Number from a decoder configured with UseNumber
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return nil, errSize
		}
		return n, nil
	default:
		return nil, errSize
	}
}
