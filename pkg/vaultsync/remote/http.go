package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	verrors "github.com/randalmurphal/vaultsync/pkg/vaultsync/errors"
	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// HTTPGateway talks to the authoritative store over HTTPS with JSON
// bodies. Records live under <baseURL>/records.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	creds   CredentialSource
	logger  *slog.Logger
}

// HTTPOption configures an HTTPGateway.
type HTTPOption func(*HTTPGateway)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		g.client = client
	}
}

// WithCredentials sets the credential source applied to every request.
func WithCredentials(creds CredentialSource) HTTPOption {
	return func(g *HTTPGateway) {
		g.creds = creds
	}
}

// WithLogger sets the logger for request-level debug logging.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

// NewHTTPGateway creates a gateway for the store rooted at baseURL.
func NewHTTPGateway(baseURL string, opts ...HTTPOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateRecord implements Gateway.
func (g *HTTPGateway) CreateRecord(ctx context.Context, payload json.RawMessage) (record.Record, error) {
	body, err := json.Marshal(map[string]json.RawMessage{"payload": payload})
	if err != nil {
		return record.Record{}, fmt.Errorf("encode payload: %w", err)
	}

	data, err := g.do(ctx, http.MethodPost, "/records", body)
	if err != nil {
		return record.Record{}, err
	}
	return decodeRecord(data)
}

// UpdateRecord implements Gateway.
func (g *HTTPGateway) UpdateRecord(ctx context.Context, id string, payload json.RawMessage) (record.Record, error) {
	body, err := json.Marshal(map[string]json.RawMessage{"payload": payload})
	if err != nil {
		return record.Record{}, fmt.Errorf("encode payload: %w", err)
	}

	data, err := g.do(ctx, http.MethodPut, "/records/"+id, body)
	if err != nil {
		return record.Record{}, err
	}
	return decodeRecord(data)
}

// ListRecords implements Gateway.
func (g *HTTPGateway) ListRecords(ctx context.Context) ([]record.Record, error) {
	data, err := g.do(ctx, http.MethodGet, "/records", nil)
	if err != nil {
		return nil, err
	}

	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode record list: %w", err)
	}

	records := make([]record.Record, 0, len(wire))
	for _, w := range wire {
		rec, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteRecord implements Gateway.
func (g *HTTPGateway) DeleteRecord(ctx context.Context, id string) (bool, error) {
	_, err := g.do(ctx, http.MethodDelete, "/records/"+id, nil)
	if err != nil {
		var httpErr *verrors.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// do performs one request and returns the response body.
// Non-2xx responses become HTTPError so the retry layer can classify
// them; transport failures pass through as-is (net errors are already
// transient).
func (g *HTTPGateway) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if g.creds != nil {
		if err := g.creds.Apply(ctx, req.Header.Set); err != nil {
			return nil, fmt.Errorf("apply credentials: %w", err)
		}
	}

	if g.logger != nil {
		g.logger.Debug("remote call",
			slog.String("method", method),
			slog.String("path", path),
		)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &verrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Endpoint:   path,
		}
	}
	return data, nil
}

// decodeRecord parses a single wire record response.
func decodeRecord(data []byte) (record.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return record.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return fromWire(w)
}

// fromWire converts a wire record to the local model. A record the
// server hands back is by definition the acknowledged remote state,
// so it carries Synced status.
func fromWire(w wireRecord) (record.Record, error) {
	rec := record.Record{
		ID:      w.ID,
		Payload: w.Payload,
		Status:  record.StatusSynced,
	}
	if w.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, w.UpdatedAt)
		if err != nil {
			return record.Record{}, fmt.Errorf("parse updated_at: %w", err)
		}
		rec.LastModified = t
	}
	return rec, nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}

	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
