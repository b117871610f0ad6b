package search

import (
	"strings"
	"sync"
)

// queryHistory keeps recent search queries in memory for autocomplete.
// Safe for concurrent use.
type queryHistory struct {
	mu      sync.Mutex
	queries []string
	limit   int
}

func newQueryHistory(limit int) *queryHistory {
	if limit < 1 {
		limit = 1
	}
	return &queryHistory{limit: limit}
}

// Record stores a query, most recent first. A repeated query moves to the
// front instead of duplicating.
func (h *queryHistory) Record(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, existing := range h.queries {
		if strings.EqualFold(existing, query) {
			copy(h.queries[1:i+1], h.queries[:i])
			h.queries[0] = query
			return
		}
	}

	h.queries = append([]string{query}, h.queries...)
	if len(h.queries) > h.limit {
		h.queries = h.queries[:h.limit]
	}
}

// Prefix returns recorded queries starting with the prefix
// (case-insensitive), most recent first.
func (h *queryHistory) Prefix(prefix string, limit int) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit < 1 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var matches []string
	for _, query := range h.queries {
		if strings.HasPrefix(strings.ToLower(query), prefix) {
			matches = append(matches, query)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches
}
