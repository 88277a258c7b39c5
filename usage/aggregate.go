package usage

import (
	"iter"

	"github.com/ollama/ollama-usage/types/model"
)

// Aggregate folds events into one Record per digest. Count includes events
// without a timestamp; LastUsed is the latest timestamp seen, or zero if
// none of the digest's events had one. The result does not depend on event
// order.
func Aggregate(events iter.Seq[Event]) map[model.Digest]Record {
	records := make(map[model.Digest]Record)
	for e := range events {
		records[e.Digest] = fold(records[e.Digest], Record{Digest: e.Digest, Count: 1, LastUsed: e.LoadedAt})
	}
	return records
}

// Merge combines partial aggregates, such as those of separate log blocks,
// into a new map. Inputs are left untouched.
func Merge(parts ...map[model.Digest]Record) map[model.Digest]Record {
	records := make(map[model.Digest]Record)
	for _, part := range parts {
		for d, r := range part {
			records[d] = fold(records[d], r)
		}
	}
	return records
}

func fold(a, b Record) Record {
	r := Record{Digest: b.Digest, Count: a.Count + b.Count, LastUsed: a.LastUsed}
	if b.LastUsed.After(r.LastUsed) {
		r.LastUsed = b.LastUsed
	}
	return r
}
