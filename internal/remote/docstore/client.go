// Package docstore implements remote.Store against the hosted document
// database's REST API.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mbruegge/gradesync/internal/errs"
	"github.com/mbruegge/gradesync/internal/remote"
)

// Config carries connection settings for the hosted store.
type Config struct {
	BaseURL   string        // e.g. https://db.example.com/v1
	ProjectID string        // multi-tenant project scope
	APIKey    string        // server key or session secret
	Timeout   time.Duration // per-request; defaults to 15s
}

// Client talks JSON over HTTP to the document database.
type Client struct {
	cfg Config
	hc  *http.Client
	log *zap.Logger
}

var _ remote.Store = (*Client)(nil)

// New builds a client with optional timeout override.
func New(cfg Config, log *zap.Logger) *Client {
	to := cfg.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: to},
		log: log,
	}
}

// document is the wire representation: metadata keys are $-prefixed, domain
// fields are inline.
type listResp struct {
	Documents []map[string]any `json:"documents"`
	Total     int              `json:"total"`
}

// List returns documents matching every filter.
func (c *Client) List(ctx context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	q := url.Values{}
	for _, f := range filters {
		q.Add("filter", f.Field+"="+f.Value)
	}
	u := c.collectionURL(collection) + "/documents"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var out listResp
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, &errs.RemoteError{Op: "list", Collection: collection, Err: err}
	}
	docs := make([]remote.Document, 0, len(out.Documents))
	for _, raw := range out.Documents {
		docs = append(docs, fromWire(raw))
	}
	return docs, nil
}

// Create stores a new document from pre-sanitized fields.
func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (remote.Document, error) {
	body := map[string]any{"data": fields}
	var raw map[string]any
	err := c.do(ctx, http.MethodPost, c.collectionURL(collection)+"/documents", body, &raw)
	if err != nil {
		return remote.Document{}, &errs.RemoteError{Op: "create", Collection: collection, Err: err}
	}
	return fromWire(raw), nil
}

// Update replaces fields on an existing document.
func (c *Client) Update(ctx context.Context, collection, docID string, fields map[string]any) error {
	body := map[string]any{"data": fields}
	u := c.collectionURL(collection) + "/documents/" + url.PathEscape(docID)
	if err := c.do(ctx, http.MethodPatch, u, body, nil); err != nil {
		return &errs.RemoteError{Op: "update", Collection: collection, Err: err}
	}
	return nil
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, collection, docID string) error {
	u := c.collectionURL(collection) + "/documents/" + url.PathEscape(docID)
	if err := c.do(ctx, http.MethodDelete, u, nil, nil); err != nil {
		return &errs.RemoteError{Op: "delete", Collection: collection, Err: err}
	}
	return nil
}

func (c *Client) collectionURL(collection string) string {
	return fmt.Sprintf("%s/collections/%s", strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(collection))
}

func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project-Id", c.cfg.ProjectID)
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errs.ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The store answered and rejected the request; that is a payload
		// problem, not an availability problem.
		return fmt.Errorf("%w: %s %s: %s", errs.ErrSchemaMismatch, method, u, resp.Status)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: %s", method, u, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// fromWire splits store metadata ($-prefixed keys) from domain fields.
func fromWire(raw map[string]any) remote.Document {
	doc := remote.Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "$id" {
			doc.DocID, _ = v.(string)
			continue
		}
		if strings.HasPrefix(k, "$") {
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}
