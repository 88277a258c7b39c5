package usage

import (
	"cmp"
	"slices"

	"github.com/ollama/ollama-usage/types/model"
)

// BuildRows joins usage records to manifest entries.
//
// A digest referenced by several manifests yields one row per manifest, all
// sharing the digest's count and last use, since usage is tracked per blob.
// A digest no manifest references yields a single deleted row. Digests that
// appear only in the index produce no rows.
//
// Rows are ordered most recently used first, rows without a last use at
// the end, and ties by name.
func BuildRows(index Index, records map[model.Digest]Record) []Row {
	rows := make([]Row, 0, len(records))
	for d, r := range records {
		entries := index.Lookup(d)
		if len(entries) == 0 {
			rows = append(rows, Row{
				Name:     DeletedName(d),
				Digest:   d,
				LastUsed: r.LastUsed,
				Count:    r.Count,
				Deleted:  true,
			})
			continue
		}

		for _, e := range entries {
			rows = append(rows, Row{
				Name:     e.Name.DisplayShortest(),
				Digest:   d,
				LastUsed: r.LastUsed,
				Count:    r.Count,
				Size:     e.Size,
			})
		}
	}

	slices.SortFunc(rows, compareRows)
	return rows
}

// DeletedName is the display name of a blob with no manifest.
func DeletedName(d model.Digest) string {
	return d.Short(DeletedPrefixLen) + DeletedSuffix
}

func compareRows(a, b Row) int {
	switch {
	case a.LastUsed.IsZero() && !b.LastUsed.IsZero():
		return 1
	case !a.LastUsed.IsZero() && b.LastUsed.IsZero():
		return -1
	}

	return cmp.Or(
		b.LastUsed.Compare(a.LastUsed),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Digest.String(), b.Digest.String()),
	)
}

// Unlogged lists the manifest entries whose blob never appears in records,
// sorted by name. It is an inventory view kept apart from the report rows.
func Unlogged(index Index, records map[model.Digest]Record) []Entry {
	var entries []Entry
	for d, es := range index {
		if _, ok := records[d]; !ok {
			entries = append(entries, es...)
		}
	}

	slices.SortFunc(entries, compareEntries)
	return entries
}
