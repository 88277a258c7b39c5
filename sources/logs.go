// Package sources collects the inputs of a usage report from the local
// machine: server log text and manifest documents.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/ollama-usage/usage"
)

// LogSource produces the text of one or more server logs. A source made of
// several files returns the blocks it could read together with an error
// for the ones it could not.
type LogSource interface {
	Blocks(ctx context.Context) ([]usage.LogBlock, error)
}

// Files reads every file matching its glob patterns. A leading "~/" expands
// to the user's home directory. Patterns matching nothing are not an error.
type Files []string

func (f Files) Blocks(ctx context.Context) ([]usage.LogBlock, error) {
	var errs []error
	var paths []string
	for _, pattern := range f {
		matches, err := filepath.Glob(expandHome(pattern))
		if err != nil {
			errs = append(errs, fmt.Errorf("log pattern %q: %w", pattern, err))
			continue
		}
		paths = append(paths, matches...)
	}

	slices.Sort(paths)
	paths = slices.Compact(paths)

	blocks := make([]usage.LogBlock, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fi, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fi.IsDir() {
			continue
		}

		bts, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		slog.Debug("read log", "path", p, "size", len(bts))
		blocks = append(blocks, usage.LogBlock{Source: p, Data: bts})
	}

	return blocks, errors.Join(errs...)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Journal reads the systemd journal of a unit.
type Journal struct {
	Unit string

	// Command is the journalctl executable. Empty means "journalctl" on
	// the PATH.
	Command string
}

func (j Journal) Blocks(ctx context.Context) ([]usage.LogBlock, error) {
	name := j.Command
	if name == "" {
		name = "journalctl"
	}

	// -o cat prints messages without the syslog prefix so marker lines
	// still start at column zero
	args := []string{"-u", j.Unit, "--no-pager", "-o", "cat"}
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return []usage.LogBlock{{Source: "journal:" + j.Unit, Data: out}}, nil
}

// ReadLogs collects blocks from every source concurrently. A failing source,
// or a failing file within one, is reported in errs and does not prevent
// the rest from being read. Blocks keep the order of srcs.
func ReadLogs(ctx context.Context, srcs ...LogSource) (blocks []usage.LogBlock, errs []error) {
	results := make([][]usage.LogBlock, len(srcs))
	failures := make([]error, len(srcs))

	var g errgroup.Group
	for i, src := range srcs {
		g.Go(func() error {
			results[i], failures[i] = src.Blocks(ctx)
			return nil
		})
	}
	g.Wait()

	for i := range srcs {
		blocks = append(blocks, results[i]...)

		if joined, ok := failures[i].(interface{ Unwrap() []error }); ok {
			errs = append(errs, joined.Unwrap()...)
		} else if failures[i] != nil {
			errs = append(errs, failures[i])
		}
	}

	return blocks, errs
}
