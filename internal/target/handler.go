// Package target implements the downstream index adapters. Each adapter is
// registered under the identifier used by the target_implementation
// configuration key.
package target

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bschlintz/panopto-index-connector/internal/fieldmap"
	"github.com/bschlintz/panopto-index-connector/internal/panopto"
)

// Document is a record shaped for the destination index.
type Document struct {
	ID     string
	Fields map[string]any
}

// Handler defines the interface all target adapters implement.
type Handler interface {
	// Name returns the adapter identifier.
	Name() string

	// Convert reshapes a Panopto index document into a target document by
	// applying the configured field mapping.
	Convert(content *panopto.VideoContent) (*Document, error)

	// Push upserts a document into the target index.
	Push(ctx context.Context, doc *Document) error

	// Delete removes a document from the target index by id.
	Delete(ctx context.Context, id string) error
}

// Options carries everything an adapter needs at construction time.
type Options struct {
	Address  string
	Username string
	Password string
	Mapping  *fieldmap.Mapping
	Logger   *slog.Logger
}

// Factory constructs a Handler from adapter options.
type Factory func(opts Options) (Handler, error)

var registry = make(map[string]Factory)

// Register adds an adapter factory under the given identifier. Registering
// the same identifier twice is a programming error.
func Register(name string, factory Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("target: adapter %q registered twice", name))
	}
	registry[name] = factory
}

// New constructs the adapter registered under name.
func New(name string, opts Options) (Handler, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown target implementation %q (known: %s)",
			name, strings.Join(Known(), ", "))
	}
	return factory(opts)
}

// Known returns the registered adapter identifiers, sorted.
func Known() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertDocument applies the field mapping to a Panopto index document.
func convertDocument(mapping *fieldmap.Mapping, content *panopto.VideoContent) (*Document, error) {
	if content.ID == "" {
		return nil, fmt.Errorf("video content has no Id")
	}

	return &Document{
		ID:     content.ID,
		Fields: mapping.Apply(content.Fields),
	}, nil
}
