// Package query filters, searches, sorts and paginates decoded records in
// memory. It works on table snapshots and never touches storage.
package query

import "github.com/JonMunkholm/credstore/internal/codec"

// Default paging when the caller leaves Page or PageSize unset.
const (
	DefaultPage     = 1
	DefaultPageSize = 15
)

// Operator is a comparison operator for field filters.
type Operator string

const (
	OpEquals     Operator = "eq"
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts"
	OpEndsWith   Operator = "ends"
	OpGreaterEq  Operator = "gte"
	OpLessEq     Operator = "lte"
	OpGreater    Operator = "gt"
	OpLess       Operator = "lt"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpIn, OpContains, OpStartsWith, OpEndsWith,
		OpGreaterEq, OpLessEq, OpGreater, OpLess:
		return true
	}
	return false
}

// Filter restricts results on one field. Filters are AND-combined.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"` // comma-separated for OpIn
}

// Options controls a listing.
type Options struct {
	SearchTerm   string
	SearchFields []string // fields matched by SearchTerm; all fields when empty
	Filters      []Filter
	SortBy       string
	SortOrder    string   // "asc" or "desc"
	DateFields   []string // fields compared as timestamps besides *Date / *At
	Page         int
	PageSize     int
}

// Page is one slice of a filtered, sorted listing. TotalRecords counts the
// filtered records before slicing.
type Page struct {
	Data         []codec.Record `json:"data"`
	TotalRecords int            `json:"totalRecords"`
	Page         int            `json:"page"`
	PageSize     int            `json:"pageSize"`
	TotalPages   int            `json:"totalPages"`
}
