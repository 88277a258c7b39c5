package sources

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/ollama-usage/usage"
)

// ErrNoInput is returned by Collect when neither logs nor manifests could
// be read.
var ErrNoInput = errors.New("no server logs or manifests found")

// Collect reads logs and manifests concurrently and builds the report.
// Problems with individual sources end up in the result's warnings.
func Collect(ctx context.Context, manifests string, logs []LogSource) (usage.Result, error) {
	var (
		blocks  []usage.LogBlock
		logErrs []error

		docs         []usage.Document
		manifestErrs []error
		rootErr      error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		blocks, logErrs = ReadLogs(ctx, logs...)
		return ctx.Err()
	})
	g.Go(func() error {
		docs, manifestErrs, rootErr = ReadManifests(ctx, manifests)
		if errors.Is(rootErr, context.Canceled) || errors.Is(rootErr, context.DeadlineExceeded) {
			return rootErr
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return usage.Result{}, err
	}

	if len(blocks) == 0 && len(docs) == 0 {
		if err := errors.Join(append(logErrs, rootErr)...); err != nil {
			return usage.Result{}, fmt.Errorf("%w: %w", ErrNoInput, err)
		}
		return usage.Result{}, ErrNoInput
	}

	result := usage.Build(blocks, docs)

	var warnings []error
	warnings = append(warnings, logErrs...)
	if rootErr != nil {
		warnings = append(warnings, fmt.Errorf("manifests: %w", rootErr))
	}
	if len(blocks) == 0 {
		warnings = append(warnings, errors.New("no server logs found"))
	}
	warnings = append(warnings, manifestErrs...)
	result.Warnings = append(warnings, result.Warnings...)

	return result, nil
}
