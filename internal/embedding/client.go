package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientConfig holds the remote model settings.
type ClientConfig struct {
	Endpoint string // https://generativelanguage.googleapis.com
	Model    string // text-embedding-004
	APIKey   string
	Timeout  time.Duration
	// Dimensions, when positive, is requested as outputDimensionality and
	// enforced on the response so provider vectors stay comparable with
	// fallback ones.
	Dimensions int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint: "https://generativelanguage.googleapis.com",
		Model:    "text-embedding-004",
		Timeout:  10 * time.Second,
	}
}

// Client calls a Gemini-style embedContent endpoint.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
}

// NewClient builds a Client. A nil httpClient gets one with config.Timeout.
func NewClient(httpClient *http.Client, config ClientConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	return &Client{httpClient: httpClient, config: config}
}

type embedRequest struct {
	Model                string       `json:"model"`
	Content              embedContent `json:"content"`
	OutputDimensionality int          `json:"outputDimensionality,omitempty"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s",
		c.config.Endpoint, url.PathEscape(c.config.Model), url.QueryEscape(c.config.APIKey))
}

// Embed returns the unit-normalized embedding of text. Every failure wraps
// ErrUnavailable.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("%w: no api key configured", ErrUnavailable)
	}

	body, err := json.Marshal(embedRequest{
		Model:                "models/" + c.config.Model,
		Content:              embedContent{Parts: []embedPart{{Text: text}}},
		OutputDimensionality: c.config.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", ErrUnavailable, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, httpResponse.StatusCode, strings.TrimSpace(string(detail)))
	}

	var wire embedResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(wire.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrUnavailable)
	}
	if n := c.config.Dimensions; n > 0 && len(wire.Embedding.Values) != n {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrUnavailable, len(wire.Embedding.Values), n)
	}

	return Normalize(wire.Embedding.Values), nil
}
