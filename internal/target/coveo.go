package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bschlintz/panopto-index-connector/internal/fieldmap"
	"github.com/bschlintz/panopto-index-connector/internal/panopto"
)

// CoveoName is the adapter identifier for the Coveo Push API.
const CoveoName = "coveo_implementation"

func init() {
	Register(CoveoName, func(opts Options) (Handler, error) {
		return NewCoveoHandler(opts)
	})
}

// CoveoHandler pushes documents to a Coveo Push API source. The target
// credentials map onto the Push API as follows: the username is the push
// source identifier, the password is the API key sent as a bearer token.
type CoveoHandler struct {
	address string
	source  string
	apiKey  string
	mapping *fieldmap.Mapping
	client  *http.Client
	logger  *slog.Logger
}

// NewCoveoHandler creates a Coveo Push API adapter.
func NewCoveoHandler(opts Options) (*CoveoHandler, error) {
	if opts.Username == "" {
		return nil, fmt.Errorf("coveo: target_credentials.username (push source id) must not be empty")
	}
	if opts.Password == "" {
		return nil, fmt.Errorf("coveo: target_credentials.password (API key) must not be empty")
	}

	return &CoveoHandler{
		address: strings.TrimSuffix(opts.Address, "/"),
		source:  opts.Username,
		apiKey:  opts.Password,
		mapping: opts.Mapping,
		logger:  opts.Logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the adapter identifier.
func (h *CoveoHandler) Name() string { return CoveoName }

// Convert applies the configured field mapping to the video document.
func (h *CoveoHandler) Convert(content *panopto.VideoContent) (*Document, error) {
	return convertDocument(h.mapping, content)
}

// Push upserts the document via PUT .../sources/{source}/documents.
func (h *CoveoHandler) Push(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("coveo: encode document %s: %w", doc.ID, err)
	}

	if err := h.do(ctx, http.MethodPut, doc.ID, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("coveo: push document %s: %w", doc.ID, err)
	}

	h.logger.Debug("pushed document to coveo", "document_id", doc.ID, "fields", len(doc.Fields))
	return nil
}

// Delete removes the document via DELETE .../sources/{source}/documents.
func (h *CoveoHandler) Delete(ctx context.Context, id string) error {
	if err := h.do(ctx, http.MethodDelete, id, nil); err != nil {
		return fmt.Errorf("coveo: delete document %s: %w", id, err)
	}

	h.logger.Debug("deleted document from coveo", "document_id", id)
	return nil
}

func (h *CoveoHandler) do(ctx context.Context, method, documentID string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/sources/%s/documents?documentId=%s",
		h.address, url.PathEscape(h.source), url.QueryEscape(documentID))

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("coveo API error: %d - %s", resp.StatusCode, string(respBody))
	}

	return nil
}
