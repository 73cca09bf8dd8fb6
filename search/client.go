package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/archidex/archidex/logger"
	"github.com/archidex/archidex/resilience"
)

const (
	apiVersion = "2024-07-01"

	// DefaultTopResults bounds how many hits a hybrid query returns.
	DefaultTopResults = 15
	// DefaultNearestNeighbors is the k used for the vector clause.
	DefaultNearestNeighbors = 30

	selectFields = "id,name,architecture_url,content"
	vectorField  = "content_vector"

	retryAttempts = 5
)

// Error describes a failed index request.
type Error struct {
	URL    string
	Method string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("search: %s %s failed with status %d", e.Method, e.URL, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client queries a managed hybrid (lexical + vector) document index over its
// REST surface. It constructs queries and shapes hits; ranking and indexing
// belong to the service.
type Client struct {
	endpoint string
	index    string
	key      string
	hc       *http.Client
	logger   logger.Logger
	breaker  *resilience.Breaker
	top      int
	k        int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

func WithTopResults(top int) Option {
	return func(c *Client) {
		c.top = top
	}
}

func WithNearestNeighbors(k int) Option {
	return func(c *Client) {
		c.k = k
	}
}

// New returns a Client for one index of the search service at endpoint.
func New(endpoint, index, key string, log logger.Logger, options ...Option) *Client {
	breakerCfg := resilience.DefaultConfig()
	breakerCfg.IsFailure = isUpstreamFailure
	client := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		index:    index,
		key:      key,
		hc:       http.DefaultClient,
		logger:   log.WithPrefix("[search]"),
		breaker:  resilience.New(breakerCfg),
		top:      DefaultTopResults,
		k:        DefaultNearestNeighbors,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type searchPayload struct {
	Search        string        `json:"search"`
	Select        string        `json:"select"`
	Top           int           `json:"top"`
	VectorQueries []vectorQuery `json:"vectorQueries"`
}

type hit struct {
	Score           float64 `json:"@search.score"`
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ArchitectureURL string  `json:"architecture_url"`
	Content         string  `json:"content"`
}

type searchResults struct {
	Value []hit `json:"value"`
}

// Search runs a hybrid query: full-text matching on query plus one k-nearest
// vector clause on the content vector field. A non-positive top uses the
// client default.
func (c *Client) Search(ctx context.Context, query string, vector []float32, top int) (*Response, error) {
	if top <= 0 {
		top = c.top
	}
	c.logger.Info("searching documents for query: %q", query)

	payload := searchPayload{
		Search: query,
		Select: selectFields,
		Top:    top,
		VectorQueries: []vectorQuery{
			{Kind: "vector", Vector: vector, K: c.k, Fields: vectorField},
		},
	}

	u := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, url.PathEscape(c.index), apiVersion)
	var results searchResults
	if err := c.do(ctx, http.MethodPost, u, payload, &results); err != nil {
		return nil, err
	}

	documents := make([]Document, 0, len(results.Value))
	for _, h := range results.Value {
		documents = append(documents, Document{
			ID:              h.ID,
			Name:            h.Name,
			ArchitectureURL: h.ArchitectureURL,
			Content:         combinedContent(h.Name, h.ArchitectureURL, h.Content),
			Score:           h.Score,
		})
	}
	c.logger.Info("found %d documents", len(documents))
	return &Response{Documents: documents}, nil
}

// GetDocument retrieves a single document by its key without vector search.
// The response carries zero or one document with a nominal score, since a key
// lookup has no relevance score.
func (c *Client) GetDocument(ctx context.Context, id string) (*Response, error) {
	if id == "" {
		c.logger.Warn("GetDocument called with an empty id")
		return &Response{Documents: []Document{}}, nil
	}
	c.logger.Info("retrieving document by id: %s", id)

	u := fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s", c.endpoint, url.PathEscape(c.index), url.PathEscape(id), apiVersion)
	var raw hit
	if err := c.do(ctx, http.MethodGet, u, nil, &raw); err != nil {
		return nil, err
	}

	return &Response{Documents: []Document{{
		ID:              raw.ID,
		Name:            raw.Name,
		ArchitectureURL: raw.ArchitectureURL,
		Content:         combinedContent(raw.Name, raw.ArchitectureURL, raw.Content),
		Score:           1.0,
	}}}, nil
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}
		if strings.Contains(err.Error(), "EOF") {
			return true
		}
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// isUpstreamFailure reports whether an error indicates the index itself is
// unhealthy, as opposed to a bad request or a missing document.
func isUpstreamFailure(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		if se.Status == 0 {
			return true
		}
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) do(ctx context.Context, method, u string, payload any, response any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.send(ctx, method, u, payload, response)
	})
}

func (c *Client) send(ctx context.Context, method, u string, payload any, response any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return &Error{URL: u, Method: method, Err: errors.Wrap(err, "marshalling payload")}
		}
	}
	c.logger.Trace("sending request: %s %s", method, u)

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return &Error{URL: u, Method: method, Err: errors.Wrap(err, "creating request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.key)

	var resp *http.Response
	for i := 0; i < retryAttempts; i++ {
		isLast := i == retryAttempts-1
		resp, err = c.hc.Do(req)
		if shouldRetry(resp, err) && !isLast {
			c.logger.Trace("index returned a retryable error, retrying...")
			if resp != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			if payload != nil {
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
			// exponential backoff
			v := 150 * math.Pow(2, float64(i))
			time.Sleep(time.Duration(v) * time.Millisecond)
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return &Error{URL: u, Method: method, Err: errors.Wrap(err, "sending request")}
		}
		break
	}
	defer resp.Body.Close()
	c.logger.Debug("response status: %s", resp.Status)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{URL: u, Method: method, Status: resp.StatusCode, Err: errors.Wrap(err, "reading response body")}
	}
	if resp.StatusCode > 299 {
		return &Error{URL: u, Method: method, Status: resp.StatusCode, Body: string(respBody)}
	}
	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return &Error{URL: u, Method: method, Status: resp.StatusCode, Body: string(respBody), Err: errors.Wrap(err, "decoding response")}
		}
	}
	return nil
}
