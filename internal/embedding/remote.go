package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
)

// Client calls the embedding service from the backend. Failures of the
// service are classified so the backend can surface the right status to
// its own callers.
type Client struct {
	baseURL    string
	dimensions int
	httpClient *http.Client
}

// NewClient returns a client for the embedding service at serviceURL.
// Returned vectors are validated against dimensions.
func NewClient(serviceURL string, dimensions int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(serviceURL, "/"),
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embed asks the service to embed the object at source and returns the
// vector.
func (c *Client) Embed(ctx context.Context, source models.ObjectRef) ([]float32, error) {
	const op = "embedding.Client.Embed"
	body, err := json.Marshal(models.EmbedRequest{Source: source})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, op, fmt.Errorf("embedding service unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errs.Newf(statusKind(resp.StatusCode), op,
			"embedding service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var embedResp models.EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, op, fmt.Errorf("decode embedding response: %w", err))
	}
	if len(embedResp.Vector) != c.dimensions {
		return nil, errs.Newf(errs.KindUpstream, op,
			"embedding service returned %d dimensions, expected %d", len(embedResp.Vector), c.dimensions)
	}
	return embedResp.Vector, nil
}

// Health reports whether the service is ready to serve embeddings.
func (c *Client) Health(ctx context.Context) error {
	const op = "embedding.Client.Health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindUpstream, op, fmt.Errorf("embedding service unreachable: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errs.Newf(errs.KindUpstream, op, "embedding service not ready: status %d", resp.StatusCode)
	}
	return nil
}

// statusKind maps an embedding service status code back onto a kind so the
// original failure class survives the hop.
func statusKind(status int) errs.Kind {
	switch status {
	case http.StatusNotFound:
		return errs.KindNotFound
	case http.StatusUnsupportedMediaType:
		return errs.KindContent
	case http.StatusServiceUnavailable:
		return errs.KindTimeout
	default:
		return errs.KindUpstream
	}
}
