// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"serp_reviews/internal/app"
	"serp_reviews/internal/domain"
)

type Handlers struct{ Svc *app.ReviewService }

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	// method-agnostic: callers hit this with GET or POST alike
	s.mux.Handle("/v1/reviews", http.HandlerFunc(h.getReviews))
}

// parseQuery validates the request once at the boundary and applies
// documented defaults; everything past this point works on typed fields.
func parseQuery(r *http.Request) (domain.ReviewQuery, error) {
	q := r.URL.Query()

	apiKey := strings.TrimSpace(q.Get("api_key"))
	if apiKey == "" {
		return domain.ReviewQuery{}, errors.New("api_key is required")
	}
	ids := splitList(q.Get("place_id"))
	if len(ids) == 0 {
		return domain.ReviewQuery{}, errors.New("place_id is required")
	}

	out := domain.ReviewQuery{
		APIKey:       apiKey,
		PlaceIDs:     ids,
		FetchAll:     boolish(q.Get("fetch_all")),
		SortMode:     q.Get("sort_by"),
		Language:     q.Get("hl"),
		RatingFilter: q.Get("rating"),
		OnlyWithText: boolish(q.Get("only_with_reviews")),
		PageToken:    q.Get("next_page_token"),
		Raw:          q,
	}
	if out.SortMode == "" {
		out.SortMode = domain.SortNewest
	}
	if out.Language == "" {
		out.Language = domain.DefaultLanguage
	}
	// a malformed or non-positive limit is ignored, not rejected
	if ls := q.Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			out.Limit = n
		}
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		log.Error().Err(err).Msg("write JSON error response failed")
	}
}

// calcETag hashes the serialized body into a weak validator.
func calcETag(body []byte) string {
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

func (h *Handlers) getReviews(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.Svc.GetReviews(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if out.CacheServed {
		w.Header().Set("X-Cache", "HIT")
	}

	etag := calcETag(out.Body)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Language", q.Language)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Body); err != nil {
		log.Error().Err(err).Msg("failed to write reviews body")
	}
}
