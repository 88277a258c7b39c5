package usage

import (
	"golang.org/x/sync/errgroup"

	"github.com/ollama/ollama-usage/types/model"
)

// Result is a complete usage report.
type Result struct {
	Rows     []Row
	Unlogged []Entry

	// Warnings holds every non-fatal problem met while building the
	// report, log diagnostics first in block order, then manifests.
	Warnings []error
}

// Build runs the whole pipeline over already collected inputs.
func (x Extractor) Build(blocks []LogBlock, docs []Document) Result {
	parts := make([]map[model.Digest]Record, len(blocks))
	diags := make([][]error, len(blocks))

	// blocks are independent since timestamps reset per block
	var g errgroup.Group
	for i, block := range blocks {
		g.Go(func() error {
			parts[i] = Aggregate(func(yield func(Event) bool) {
				for e, err := range x.Events(block) {
					if err != nil {
						diags[i] = append(diags[i], err)
						continue
					}
					if !yield(e) {
						return
					}
				}
			})
			return nil
		})
	}

	index, manifestErrs := IndexManifests(docs)
	g.Wait()

	records := Merge(parts...)

	var warnings []error
	for _, d := range diags {
		warnings = append(warnings, d...)
	}
	warnings = append(warnings, manifestErrs...)

	return Result{
		Rows:     BuildRows(index, records),
		Unlogged: Unlogged(index, records),
		Warnings: warnings,
	}
}

// Build is shorthand for a zero Extractor's Build.
func Build(blocks []LogBlock, docs []Document) Result {
	return Extractor{}.Build(blocks, docs)
}

// Report is the serialized form of a Result.
type Report struct {
	Models   []Row    `json:"models"`
	Unlogged []Entry  `json:"unlogged"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r Result) Report() Report {
	report := Report{
		Models:   r.Rows,
		Unlogged: r.Unlogged,
	}
	if report.Models == nil {
		report.Models = []Row{}
	}
	if report.Unlogged == nil {
		report.Unlogged = []Entry{}
	}
	for _, w := range r.Warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}
	return report
}
