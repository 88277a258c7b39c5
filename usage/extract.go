package usage

import (
	"bufio"
	"bytes"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ollama/ollama-usage/logutil"
	"github.com/ollama/ollama-usage/types/model"
)

const (
	blobPrefix   = "sha256-"
	legacyLayout = "2006/01/02 15:04:05"
	maxLineSize  = 10 * 1024 * 1024 // longer lines are reported and skipped
)

var (
	// slog text handler output, e.g. time=2024-10-29T07:18:20.601-07:00 level=INFO ...
	timeRE = regexp.MustCompile(`(?:^|\s)time="?([^\s"]+)`)

	// log package output from older servers, e.g. 2024/10/29 07:18:20 routes.go:1008: ...
	legacyRE = regexp.MustCompile(`^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}`)
)

// Extractor turns log text into load events.
type Extractor struct {
	// Location interprets legacy timestamps, which carry no offset. Nil
	// means time.Local.
	Location *time.Location
}

// Extract is shorthand for a zero Extractor's Events.
func Extract(blocks ...LogBlock) iter.Seq2[Event, error] {
	return Extractor{}.Events(blocks...)
}

// Events scans blocks in order and yields one event per model load. A
// non-nil error is a diagnostic for a skipped line; scanning continues
// after it.
//
// Each load is stamped with the most recent timestamp seen earlier in the
// same block. Timestamps never carry over from one block to the next.
func (x Extractor) Events(blocks ...LogBlock) iter.Seq2[Event, error] {
	loc := x.Location
	if loc == nil {
		loc = time.Local
	}

	return func(yield func(Event, error) bool) {
		for _, block := range blocks {
			if !scanBlock(block, loc, yield) {
				return
			}
		}
	}
}

func scanBlock(block LogBlock, loc *time.Location, yield func(Event, error) bool) bool {
	var last time.Time
	var n int
	for raw := range lines(block.Data) {
		n++

		if len(raw) > maxLineSize {
			err := fmt.Errorf("%w: %d bytes", bufio.ErrTooLong, len(raw))
			if !yield(Event{}, &LineError{Source: block.Source, Line: n, Err: err}) {
				return false
			}
			continue
		}

		line := string(raw)

		if strings.HasPrefix(line, MarkerPrefix) {
			hex, ok := blobDigest(line)
			if !ok {
				continue
			}

			d := model.ParseDigest(hex)
			if !d.IsValid() {
				err := fmt.Errorf("%w: %q", ErrInvalidDigest, hex)
				if !yield(Event{}, &LineError{Source: block.Source, Line: n, Err: err}) {
					return false
				}
				continue
			}

			logutil.Trace("model load", "source", block.Source, "line", n, "digest", d, "time", last)
			if !yield(Event{Digest: d, LoadedAt: last}, nil) {
				return false
			}
			continue
		}

		if m := timeRE.FindStringSubmatch(line); m != nil {
			t, err := time.Parse(time.RFC3339Nano, m[1])
			if err != nil {
				err = fmt.Errorf("%w: %q", ErrUnparseableTimestamp, m[1])
				if !yield(Event{}, &LineError{Source: block.Source, Line: n, Err: err}) {
					return false
				}
				continue
			}
			last = t
		} else if m := legacyRE.FindString(line); m != "" {
			t, err := time.ParseInLocation(legacyLayout, m, loc)
			if err != nil {
				err = fmt.Errorf("%w: %q", ErrUnparseableTimestamp, m)
				if !yield(Event{}, &LineError{Source: block.Source, Line: n, Err: err}) {
					return false
				}
				continue
			}
			last = t
		}
	}

	return true
}

// lines splits data on '\n', dropping a trailing '\r' from each line and
// the empty remainder after a final newline.
func lines(data []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		rest := data
		for len(rest) > 0 {
			line := rest
			if i := bytes.IndexByte(rest, '\n'); i >= 0 {
				line, rest = rest[:i], rest[i+1:]
			} else {
				rest = nil
			}

			if !yield(bytes.TrimSuffix(line, []byte{'\r'})) {
				return
			}
		}
	}
}

// blobDigest returns the text following the first "sha256-" in line, up to
// the next path separator or space.
func blobDigest(line string) (string, bool) {
	_, rest, ok := strings.Cut(line, blobPrefix)
	if !ok {
		return "", false
	}

	if i := strings.IndexFunc(rest, func(r rune) bool {
		return r == '/' || r == '\\' || unicode.IsSpace(r)
	}); i >= 0 {
		rest = rest[:i]
	}

	return rest, true
}
