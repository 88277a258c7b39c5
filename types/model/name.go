package model

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrIncompleteName is returned, wrapped, when a manifest path is too short
// to carry a registry, namespace, model and tag.
var ErrIncompleteName = errors.New("incomplete model name")

// DefaultNamespace is the namespace of official models. It is omitted from
// display names.
const DefaultNamespace = "library"

// Name is a model reference derived from the location of its manifest:
//
//	<manifests>/<host>/<namespace>/<model>/<tag>
//
// The host only tells which registry a manifest came from; it is never
// part of the display form.
type Name struct {
	Host      string
	Namespace string
	Model     string
	Tag       string
}

// ParseNameFromFilepath builds a Name from the last four components of a
// manifest path. Both '/' and '\' are treated as separators so paths
// collected on any platform parse the same way.
func ParseNameFromFilepath(path string) (Name, error) {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	if len(parts) < 4 {
		return Name{}, fmt.Errorf("%w: %q", ErrIncompleteName, path)
	}

	parts = parts[len(parts)-4:]
	return Name{
		Host:      parts[0],
		Namespace: parts[1],
		Model:     parts[2],
		Tag:       parts[3],
	}, nil
}

// DisplayShortest returns "namespace/model:tag", or "model:tag" for models
// in the default namespace.
func (n Name) DisplayShortest() string {
	if n.Namespace == DefaultNamespace {
		return n.Model + ":" + n.Tag
	}
	return n.Namespace + "/" + n.Model + ":" + n.Tag
}

// String returns the fully qualified form including the host.
func (n Name) String() string {
	return n.Host + "/" + n.Namespace + "/" + n.Model + ":" + n.Tag
}

// LogValue implements slog.LogValuer.
func (n Name) LogValue() slog.Value {
	return slog.StringValue(n.String())
}

// MarshalText implements encoding.TextMarshaler using the display form.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.DisplayShortest()), nil
}
