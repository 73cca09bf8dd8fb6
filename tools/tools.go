package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/archidex/archidex/cache"
	"github.com/archidex/archidex/embeddings"
	"github.com/archidex/archidex/logger"
	"github.com/archidex/archidex/mcp/types"
	"github.com/archidex/archidex/search"
)

const (
	ToolSearch        = "search"
	ToolSearchByDocID = "search_by_doc_id"
)

var (
	// ErrUnknownTool is returned when Call is given a tool name that is not
	// registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingArgument is returned when a required tool argument is absent
	// or empty.
	ErrMissingArgument = errors.New("missing argument")
)

// Property describes one input argument of a tool.
type Property struct {
	Name        string `json:"propertyName"`
	Type        string `json:"propertyType"`
	Description string `json:"description"`
}

// Definition describes a tool and its input arguments.
type Definition struct {
	Name        string
	Description string
	Properties  []Property
}

// Tool renders the definition in the wire shape used by tools/list.
func (d Definition) Tool() types.Tool {
	properties := make(map[string]any, len(d.Properties))
	required := make([]string, 0, len(d.Properties))
	for _, p := range d.Properties {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		required = append(required, p.Name)
	}
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return types.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: schema,
	}
}

// Definitions returns the tools the service exposes.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        ToolSearch,
			Description: "Search for documents using a query.",
			Properties: []Property{
				{
					Name:        "query",
					Type:        "string",
					Description: "The search query to use for finding documents.",
				},
			},
		},
		{
			Name:        ToolSearchByDocID,
			Description: "Search for documents using the document id.",
			Properties: []Property{
				{
					Name:        "doc_id",
					Type:        "string",
					Description: "The document id to use for finding documents.",
				},
			},
		},
	}
}

// Searcher is the slice of the search client the service needs.
type Searcher interface {
	Search(ctx context.Context, query string, vector []float32, top int) (*search.Response, error)
	GetDocument(ctx context.Context, id string) (*search.Response, error)
}

// Service validates tool arguments, runs the underlying search operations
// and shapes results into content blocks.
type Service struct {
	searcher Searcher
	embedder embeddings.Embedder
	cache    cache.Cache
	cacheTTL time.Duration
	top      int
	logger   logger.Logger
}

type Option func(*Service)

// WithCache enables read-through caching of tool results.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithTopResults bounds how many documents a search returns.
func WithTopResults(top int) Option {
	return func(s *Service) {
		s.top = top
	}
}

func NewService(searcher Searcher, embedder embeddings.Embedder, log logger.Logger, options ...Option) *Service {
	s := &Service{
		searcher: searcher,
		embedder: embedder,
		top:      search.DefaultTopResults,
		logger:   log.WithPrefix("[tools]"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Search embeds the query and runs a hybrid search.
func (s *Service) Search(ctx context.Context, query string) (*search.Response, error) {
	if query == "" {
		return nil, errors.Wrap(ErrMissingArgument, "query")
	}
	run := func(ctx context.Context) (*search.Response, bool, error) {
		vector, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, false, err
		}
		resp, err := s.searcher.Search(ctx, query, vector, s.top)
		if err != nil {
			return nil, false, err
		}
		return resp, true, nil
	}
	if s.cache == nil {
		resp, _, err := run(ctx)
		return resp, err
	}
	_, resp, err := cache.Exec(ctx, s.cache, cache.Key(ToolSearch, query), s.cacheTTL, run)
	return resp, err
}

// SearchByDocID looks a document up by its key.
func (s *Service) SearchByDocID(ctx context.Context, docID string) (*search.Response, error) {
	if docID == "" {
		return nil, errors.Wrap(ErrMissingArgument, "doc_id")
	}
	run := func(ctx context.Context) (*search.Response, bool, error) {
		resp, err := s.searcher.GetDocument(ctx, docID)
		if err != nil {
			return nil, false, err
		}
		return resp, true, nil
	}
	if s.cache == nil {
		resp, _, err := run(ctx)
		return resp, err
	}
	_, resp, err := cache.Exec(ctx, s.cache, cache.Key(ToolSearchByDocID, docID), s.cacheTTL, run)
	return resp, err
}

// Call dispatches a tool invocation by name and wraps the result in a
// structured content block.
func (s *Service) Call(ctx context.Context, name string, args map[string]any) ([]types.Content, error) {
	var (
		resp *search.Response
		err  error
	)
	switch name {
	case ToolSearch:
		resp, err = s.Search(ctx, stringArg(args, "query"))
	case ToolSearchByDocID:
		resp, err = s.SearchByDocID(ctx, stringArg(args, "doc_id"))
	default:
		return nil, errors.Wrap(ErrUnknownTool, name)
	}
	if err != nil {
		s.logger.Error("tool %s failed: %s", name, err)
		return nil, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling %s result", name)
	}
	s.logger.Debug("tool %s returned %d documents", name, len(resp.Documents))
	return []types.Content{
		{Type: types.ContentTypeJSON, Data: data},
	}, nil
}

func stringArg(args map[string]any, name string) string {
	if args == nil {
		return ""
	}
	val, _ := args[name].(string)
	return val
}
