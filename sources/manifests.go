package sources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/ollama-usage/usage"
)

// ReadManifests decodes every manifest under root, laid out as
// <root>/<registry>/<namespace>/<model>/<tag>. Files that cannot be read
// or are not JSON are reported in errs and skipped. The returned error is
// set only when root itself cannot be listed.
func ReadManifests(ctx context.Context, root string) (docs []usage.Document, errs []error, err error) {
	if _, err := os.Stat(root); err != nil {
		return nil, nil, err
	}

	matches, err := filepath.Glob(filepath.Join(root, "*", "*", "*", "*"))
	if err != nil {
		return nil, nil, err
	}

	results := make([]*usage.Document, len(matches))
	failures := make([]error, len(matches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, match := range matches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			doc, err := readManifest(match)
			if err != nil {
				failures[i] = &usage.ManifestError{Path: match, Err: err}
				return nil
			}
			results[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i := range matches {
		switch {
		case failures[i] != nil:
			errs = append(errs, failures[i])
		case results[i] != nil:
			docs = append(docs, *results[i])
		}
	}

	return docs, errs, nil
}

// readManifest returns nil, nil for directories.
func readManifest(path string) (*usage.Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, nil
	}

	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(bts))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", usage.ErrMalformedManifest, err)
	}

	return &usage.Document{Path: path, Value: v}, nil
}
