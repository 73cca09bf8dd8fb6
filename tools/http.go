package tools

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/archidex/archidex/search"
)

// Handler exposes the tools over plain HTTP for local use and smoke tests.
// Each tool is a POST endpoint taking a small JSON body and returning the
// document set, with errors rendered as {"error": "..."}.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var req search.Request
		if !s.decodeBody(w, r, &req) {
			return
		}
		resp, err := s.Search(r.Context(), req.Query)
		s.respond(w, resp, err)
	})
	mux.HandleFunc("/search_by_doc_id", func(w http.ResponseWriter, r *http.Request) {
		var req search.ByIDRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		resp, err := s.SearchByDocID(r.Context(), req.DocID)
		s.respond(w, resp, err)
	})
	return mux
}

func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decoding request body"))
		return false
	}
	return true
}

func (s *Service) respond(w http.ResponseWriter, resp *search.Response, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrMissingArgument) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encoding response: %s", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
