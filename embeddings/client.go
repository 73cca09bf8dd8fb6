package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/archidex/archidex/logger"
)

// Embedder produces a vector embedding for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client calls an OpenAI-compatible /embeddings endpoint. It is plumbing
// only: the model and its hosting belong to the service.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
	logger  logger.Logger
}

var _ Embedder = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// New returns a Client for the embeddings endpoint under baseURL
// (e.g. https://api.openai.com/v1) using the given model deployment.
func New(baseURL, apiKey, model string, log logger.Logger, options ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		hc:      &http.Client{Timeout: 60 * time.Second},
		logger:  log.WithPrefix("[embeddings]"),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, errors.Wrap(err, "embeddings: marshalling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "embeddings: creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "embeddings: sending request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "embeddings: reading response")
	}
	if resp.StatusCode > 299 {
		return nil, errors.Newf("embeddings: request failed with status %d: %s", resp.StatusCode, respBody)
	}

	var decoded embeddingsResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, errors.Wrap(err, "embeddings: decoding response")
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("embeddings: response carried no vectors")
	}
	c.logger.Debug("generated vector embedding (dimension: %d)", len(decoded.Data[0].Embedding))
	return decoded.Data[0].Embedding, nil
}
