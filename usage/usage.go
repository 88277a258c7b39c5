// Package usage correlates Ollama server logs with the local manifest tree
// to report how often, and how recently, each model was loaded.
//
// The package does no I/O of its own. Callers hand it log text as
// [LogBlock] values and decoded manifests as [Document] values, and get
// back report rows.
package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ollama/ollama-usage/types/model"
)

const (
	// MarkerPrefix starts every log line written when the runner loads a
	// model file.
	MarkerPrefix = "llama_model_loader: loaded meta data"

	// ModelMediaType identifies the weights layer of a manifest.
	ModelMediaType = "application/vnd.ollama.image.model"

	// DeletedPrefixLen is how many hex characters of a digest are shown for
	// a model whose manifest no longer exists.
	DeletedPrefixLen = 12

	// DeletedSuffix marks a model whose manifest no longer exists.
	DeletedSuffix = "-deleted"
)

var (
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")
	ErrMalformedManifest    = errors.New("malformed manifest")
	ErrInvalidDigest        = model.ErrInvalidDigest
)

// LogBlock is the text of one log source, such as a server.log file or the
// output of a journal query.
type LogBlock struct {
	Source string
	Data   []byte
}

// Document is one manifest file decoded into a generic JSON value.
type Document struct {
	Path  string
	Value any
}

// Event is a single model load seen in the logs. A zero LoadedAt means no
// timestamp preceded the load in its log block.
type Event struct {
	Digest   model.Digest
	LoadedAt time.Time
}

// Entry is the model layer of one manifest.
type Entry struct {
	Name   model.Name   `json:"name"`
	Digest model.Digest `json:"digest"`
	Size   uint64       `json:"size"`
}

// Record is the usage of one blob across all events.
type Record struct {
	Digest   model.Digest
	Count    int
	LastUsed time.Time
}

// Row is one line of the usage report. Size is only meaningful when
// Deleted is false.
type Row struct {
	Name     string
	Digest   model.Digest
	LastUsed time.Time
	Count    int
	Size     uint64
	Deleted  bool
}

func (r Row) MarshalJSON() ([]byte, error) {
	type row struct {
		Name     string       `json:"name"`
		Digest   model.Digest `json:"digest"`
		LastUsed *time.Time   `json:"last_used"`
		Count    int          `json:"count"`
		Size     *uint64      `json:"size,omitempty"`
		Deleted  bool         `json:"deleted,omitempty"`
	}

	out := row{Name: r.Name, Digest: r.Digest, Count: r.Count, Deleted: r.Deleted}
	if !r.LastUsed.IsZero() {
		out.LastUsed = &r.LastUsed
	}
	if !r.Deleted {
		out.Size = &r.Size
	}
	return json.Marshal(out)
}

// LineError locates a problem in a log block.
type LineError struct {
	Source string
	Line   int
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ManifestError locates a problem in a manifest file.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }
