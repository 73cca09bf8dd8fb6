package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/archidex/archidex/logger"
	"github.com/archidex/archidex/mcp/types"
	str "github.com/archidex/archidex/string"
)

const (
	DefaultCallTimeout = 30 * time.Second

	// closeJoinTimeout bounds how long Close waits for the listener to exit.
	closeJoinTimeout = 2 * time.Second

	// maxErrorBody caps how much of a failed POST response is kept for the error.
	maxErrorBody = 4096
)

// Client provides a synchronous request/response abstraction over a
// server-sent-event stream paired with an out-of-band HTTP POST endpoint.
//
// One long-lived GET on the stream URL discovers the per-session write
// endpoint; JSON-RPC requests are POSTed to that endpoint and resolved by
// correlating the responses observed on the stream. The stream-delivered
// response is authoritative; the POST's own response body is advisory.
type Client struct {
	baseURL     string
	accessKey   string
	hc          *http.Client
	logger      logger.Logger
	info        types.ClientInfo
	callTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]chan *types.JSONRPCMessage
	writeURL string
	started  bool

	endpointReady chan struct{}
	done          chan struct{}
	listenErr     error
	listenCtx     context.Context
	listenStop    context.CancelFunc
	closeOnce     sync.Once
}

type Option func(*Client)

// WithAccessKey sets an access key appended as a code query parameter to the
// discovered write endpoint when the endpoint does not already carry one.
func WithAccessKey(key string) Option {
	return func(c *Client) {
		c.accessKey = key
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.info = types.ClientInfo{Name: name, Version: version}
	}
}

// WithCallTimeout sets the default per-call timeout used when Call is given a
// non-positive timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = timeout
	}
}

// New returns a Client for the given event-stream URL. The client is inert
// until Connect is called.
func New(streamURL string, log logger.Logger, options ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		baseURL:       streamURL,
		hc:            http.DefaultClient,
		logger:        log.WithPrefix("[mcp]"),
		info:          types.ClientInfo{Name: "archidex", Version: "0.1"},
		callTimeout:   DefaultCallTimeout,
		pending:       make(map[string]chan *types.JSONRPCMessage),
		endpointReady: make(chan struct{}),
		done:          make(chan struct{}),
		listenCtx:     ctx,
		listenStop:    cancel,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Connect opens the event stream in a background goroutine and blocks until a
// write endpoint has been discovered or handshakeTimeout elapses. The
// listener keeps running until Close or a stream failure.
func (c *Client) Connect(ctx context.Context, handshakeTimeout time.Duration) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("mcp: already connected")
	}
	c.started = true
	c.mu.Unlock()

	go c.listen()

	timer := time.NewTimer(handshakeTimeout)
	defer timer.Stop()

	select {
	case <-c.endpointReady:
		return nil
	case <-c.done:
		err := c.listenErr
		if err == nil {
			err = errors.New("mcp: stream closed before endpoint discovery")
		}
		return errors.Mark(err, ErrHandshakeTimeout)
	case <-timer.C:
		return ErrHandshakeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call issues a synchronous JSON-RPC request and blocks until the background
// listener resolves the matching response or timeout elapses. A non-positive
// timeout uses the client default. On timeout the pending entry is removed so
// a late response is dropped instead of resurrecting a dead caller.
func (c *Client) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	writeURL := c.writeURL
	c.mu.Unlock()
	if writeURL == "" {
		return nil, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = c.callTimeout
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrapf(err, "mcp: marshalling %s params", method)
	}

	id := uuid.NewString()
	body, err := json.Marshal(types.JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "mcp: marshalling %s request", method)
	}

	ch := make(chan *types.JSONRPCMessage, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, writeURL, bytes.NewReader(body))
	if err != nil {
		c.forget(id)
		return nil, errors.Wrap(err, "mcp: creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Trace("-> %s id=%s", method, id)
	resp, err := c.hc.Do(req)
	if err != nil {
		c.forget(id)
		return nil, errors.Wrapf(err, "mcp: sending %s request", method)
	}
	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		c.forget(id)
		return nil, &TransportError{Status: resp.StatusCode, Body: string(slurp)}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, &RemoteError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
		}
		return msg.Result, nil
	case <-timer.C:
		c.forget(id)
		return nil, errors.Wrapf(ErrRPCTimeout, "method %s", method)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Close signals the background listener to stop and joins it with a bounded
// wait. Safe to call more than once and while calls are outstanding;
// outstanding calls observe their ordinary timeout.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.listenStop()
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if !started {
			return
		}
		select {
		case <-c.done:
		case <-time.After(closeJoinTimeout):
			c.logger.Warn("listener did not stop within %s", closeJoinTimeout)
		}
	})
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// listen reads the event stream until the stop context fires or the server
// closes the stream. It never blocks on application logic: dispatch only
// performs lock-protected table mutations and JSON parsing.
func (c *Client) listen() {
	defer close(c.done)

	req, err := http.NewRequestWithContext(c.listenCtx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		c.listenErr = errors.Wrap(err, "mcp: creating stream request")
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.listenErr = errors.Wrap(err, "mcp: opening stream")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.listenErr = &TransportError{Status: resp.StatusCode, Body: string(slurp)}
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var buf []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if len(buf) > 0 {
				c.dispatch(parseFrame(event, strings.Join(buf, "\n")))
			}
			event, buf = "", nil
			continue
		}
		if value, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(line, "data:"); ok {
			buf = append(buf, strings.TrimSpace(value))
		}
	}
	if err := scanner.Err(); err != nil && c.listenCtx.Err() == nil {
		c.listenErr = errors.Wrap(err, "mcp: reading stream")
		c.logger.Debug("stream terminated: %v", err)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.kind {
	case frameEndpoint:
		c.setEndpoint(f.endpoint)
	case frameMessage:
		// Fallback discovery path: some servers embed the endpoint in a JSON
		// message instead of a bare endpoint event.
		if f.endpoint != "" && !c.endpointDiscovered() {
			c.setEndpoint(f.endpoint)
			return
		}
		if f.msg.ID == nil {
			return
		}
		id := idKey(f.msg.ID)
		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			// Unknown or already-resolved id.
			c.logger.Trace("dropping response for id %s", id)
			return
		}
		ch <- f.msg
	}
}

// setEndpoint qualifies and records the write endpoint. First one wins; later
// discovery events are ignored for the session's lifetime.
func (c *Client) setEndpoint(raw string) {
	resolved, err := c.qualifyEndpoint(raw)
	if err != nil {
		c.logger.Warn("ignoring malformed endpoint %q: %v", raw, err)
		return
	}
	c.mu.Lock()
	if c.writeURL != "" {
		c.mu.Unlock()
		return
	}
	c.writeURL = resolved
	c.mu.Unlock()
	close(c.endpointReady)
	if masked, err := str.MaskURL(resolved); err == nil {
		c.logger.Debug("write endpoint discovered: %s", masked)
	}
}

func (c *Client) endpointDiscovered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeURL != ""
}

// qualifyEndpoint resolves a raw endpoint path/URL against the stream's base
// URL, appending the access key when the endpoint carries no credential.
func (c *Client) qualifyEndpoint(raw string) (string, error) {
	if c.accessKey != "" && !strings.Contains(raw, "code=") {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		raw += sep + "code=" + url.QueryEscape(c.accessKey)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing stream url")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parsing endpoint")
	}
	return base.ResolveReference(ref).String(), nil
}

func idKey(id interface{}) string {
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id)
}
