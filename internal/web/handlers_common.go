package web

// Shared request parsing helpers used across handlers.

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/query"
)

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseListOptions reads listing parameters:
//
//	?search=ada&filter[status]=eq:Active&filter[state]=in:CA,NY&sort=lastName&dir=desc&page=2&pageSize=25
//
// Unset page and pageSize are left zero so the entity's list profile applies.
func parseListOptions(r *http.Request) (query.Options, error) {
	q := r.URL.Query()

	opts := query.Options{
		SearchTerm: strings.TrimSpace(q.Get("search")),
		SortBy:     q.Get("sort"),
		SortOrder:  strings.ToLower(q.Get("dir")),
		Page:       parseIntParam(r, "page", 0),
		PageSize:   parseIntParam(r, "pageSize", 0),
	}

	switch opts.SortOrder {
	case "", "asc", "desc":
	default:
		return query.Options{}, apperr.Invalid("dir must be asc or desc, got %q", opts.SortOrder)
	}

	filters, err := parseFilters(q)
	if err != nil {
		return query.Options{}, err
	}
	opts.Filters = filters

	return opts, nil
}

// parseFilters reads filter[field]=op:value parameters. A value without an
// operator prefix is an equality filter.
func parseFilters(q url.Values) ([]query.Filter, error) {
	var filters []query.Filter

	for key, values := range q {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field := strings.TrimSuffix(strings.TrimPrefix(key, "filter["), "]")
		if field == "" {
			return nil, apperr.Invalid("filter parameter %q has no field", key)
		}

		for _, raw := range values {
			op, value := query.OpEquals, raw
			if prefix, rest, ok := strings.Cut(raw, ":"); ok && query.Operator(prefix).Valid() {
				op, value = query.Operator(prefix), rest
			} else if ok && isOperatorLike(prefix) {
				return nil, apperr.Invalid("unknown filter operator %q for %s", prefix, field)
			}
			filters = append(filters, query.Filter{Field: field, Operator: op, Value: value})
		}
	}

	// Map iteration order is random; keep filters stable for logging and tests
	sort.SliceStable(filters, func(i, j int) bool { return filters[i].Field < filters[j].Field })
	return filters, nil
}

// isOperatorLike reports whether s looks like an operator name rather than
// part of a value such as a timestamp.
func isOperatorLike(s string) bool {
	if s == "" || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// decodeRecord reads a JSON object body, limited to maxBytes.
func decodeRecord(w http.ResponseWriter, r *http.Request, maxBytes int64) (codec.Record, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var rec codec.Record
	if err := dec.Decode(&rec); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, apperr.Invalid("request body is not valid JSON: %v", err)
	}
	if rec == nil {
		return nil, apperr.Invalid("request body must be a JSON object")
	}
	return rec, nil
}

// clientIP returns the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
