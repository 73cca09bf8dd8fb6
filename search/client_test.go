package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archidex/archidex/logger"
	"github.com/archidex/archidex/resilience"
)

func TestSearchBuildsHybridQuery(t *testing.T) {
	var got searchPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/indexes/architectures/docs/search", r.URL.Path)
		assert.Equal(t, apiVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[
			{"@search.score":2.5,"id":"doc-1","name":"Service Bus","architecture_url":"https://arch/sb","content":"queues"},
			{"@search.score":1.25,"id":"doc-2","name":"","architecture_url":"","content":"topics"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "architectures", "secret", logger.NewTestLogger())
	resp, err := c.Search(context.Background(), "service bus", []float32{0.25, -1, 3}, 10)
	require.NoError(t, err)

	assert.Equal(t, "service bus", got.Search)
	assert.Equal(t, 10, got.Top)
	assert.Equal(t, selectFields, got.Select)
	require.Len(t, got.VectorQueries, 1)
	assert.Equal(t, "vector", got.VectorQueries[0].Kind)
	assert.Equal(t, DefaultNearestNeighbors, got.VectorQueries[0].K)
	assert.Equal(t, vectorField, got.VectorQueries[0].Fields)
	assert.Equal(t, []float32{0.25, -1, 3}, got.VectorQueries[0].Vector)

	require.Len(t, resp.Documents, 2)
	assert.Equal(t, "doc-1", resp.Documents[0].ID)
	assert.Equal(t, 2.5, resp.Documents[0].Score)
	assert.Contains(t, resp.Documents[0].Content, "=== NAME ===\nService Bus\n=== END NAME ===")
	assert.Contains(t, resp.Documents[0].Content, "=== URL ===\nhttps://arch/sb\n=== END URL ===")
	assert.Contains(t, resp.Documents[0].Content, "=== CONTENT ===\nqueues\n=== END CONTENT ===")
	// Empty fields produce no section.
	assert.NotContains(t, resp.Documents[1].Content, "=== NAME ===")
	assert.Contains(t, resp.Documents[1].Content, "topics")
}

func TestSearchDefaultTop(t *testing.T) {
	var got searchPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "idx", "k", logger.NewTestLogger(), WithTopResults(7), WithNearestNeighbors(5))
	resp, err := c.Search(context.Background(), "q", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Documents)
	assert.Equal(t, 7, got.Top)
	assert.Equal(t, 5, got.VectorQueries[0].K)
}

func TestGetDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/indexes/idx/docs/doc%2F1", r.URL.RawPath)
		w.Write([]byte(`{"id":"doc/1","name":"CQRS","architecture_url":"https://arch/cqrs","content":"commands"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "idx", "k", logger.NewTestLogger())
	resp, err := c.GetDocument(context.Background(), "doc/1")
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)
	doc := resp.Documents[0]
	assert.Equal(t, "doc/1", doc.ID)
	assert.Equal(t, 1.0, doc.Score)
	assert.Contains(t, doc.Content, "=== NAME ===\nCQRS\n=== END NAME ===")
}

func TestGetDocumentEmptyID(t *testing.T) {
	c := New("http://unused", "idx", "k", logger.NewTestLogger())
	resp, err := c.GetDocument(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, resp.Documents)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad vector"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "idx", "k", logger.NewTestLogger())
	_, err := c.Search(context.Background(), "q", nil, 0)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.Status)
	assert.Contains(t, serr.Body, "bad vector")
}

func TestSearchRetriesOnRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"value":[{"@search.score":1,"id":"a"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "idx", "k", logger.NewTestLogger())
	resp, err := c.Search(context.Background(), "q", []float32{1}, 0)
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchShedsCallsWhenIndexKeepsFailing(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "idx", "k", logger.NewTestLogger())
	for i := 0; i < 5; i++ {
		_, err := c.Search(context.Background(), "q", []float32{1}, 0)
		require.Error(t, err)
	}
	before := calls.Load()

	_, err := c.Search(context.Background(), "q", []float32{1}, 0)
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, before, calls.Load())
}

func TestBadRequestDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad vector", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "idx", "k", logger.NewTestLogger())
	for i := 0; i < 10; i++ {
		_, err := c.Search(context.Background(), "q", nil, 0)
		var serr *Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusBadRequest, serr.Status)
	}
}
