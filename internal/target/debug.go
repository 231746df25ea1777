package target

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bschlintz/panopto-index-connector/internal/fieldmap"
	"github.com/bschlintz/panopto-index-connector/internal/panopto"
)

// DebugName is the adapter identifier for the logging adapter used in dry
// runs.
const DebugName = "debug_implementation"

func init() {
	Register(DebugName, func(opts Options) (Handler, error) {
		return NewDebugHandler(opts), nil
	})
}

// DebugHandler logs converted documents instead of pushing them anywhere.
type DebugHandler struct {
	mapping *fieldmap.Mapping
	logger  *slog.Logger
}

// NewDebugHandler creates the logging adapter.
func NewDebugHandler(opts Options) *DebugHandler {
	return &DebugHandler{mapping: opts.Mapping, logger: opts.Logger}
}

// Name returns the adapter identifier.
func (h *DebugHandler) Name() string { return DebugName }

// Convert applies the configured field mapping to the video document.
func (h *DebugHandler) Convert(content *panopto.VideoContent) (*Document, error) {
	return convertDocument(h.mapping, content)
}

// Push logs the document that would have been indexed.
func (h *DebugHandler) Push(_ context.Context, doc *Document) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return err
	}

	h.logger.Info("would push document", "document_id", doc.ID, "fields", string(fields))
	return nil
}

// Delete logs the document that would have been removed.
func (h *DebugHandler) Delete(_ context.Context, id string) error {
	h.logger.Info("would delete document", "document_id", id)
	return nil
}
