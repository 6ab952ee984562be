package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/credstore/internal/codec"
)

// List filters, searches, sorts and paginates records. The input slice is
// not modified.
func List(records []codec.Record, opts Options) Page {
	matched := make([]codec.Record, 0, len(records))
	term := strings.ToLower(strings.TrimSpace(opts.SearchTerm))
	for _, rec := range records {
		if !matchesFilters(rec, opts.Filters, opts.DateFields) {
			continue
		}
		if term != "" && !matchesSearch(rec, term, opts.SearchFields) {
			continue
		}
		matched = append(matched, rec)
	}

	if opts.SortBy != "" {
		sortRecords(matched, opts.SortBy, strings.EqualFold(opts.SortOrder, "desc"), opts.DateFields)
	}

	return paginate(matched, opts.Page, opts.PageSize)
}

func matchesFilters(rec codec.Record, filters []Filter, dateFields []string) bool {
	for _, f := range filters {
		if f.Value == "" {
			continue
		}
		if !matchFilter(codec.String(rec[f.Field]), f, isDateField(f.Field, dateFields)) {
			return false
		}
	}
	return true
}

func matchFilter(actual string, f Filter, dateLike bool) bool {
	switch f.Operator {
	case OpEquals, "":
		return actual == f.Value
	case OpIn:
		for _, v := range strings.Split(f.Value, ",") {
			if strings.TrimSpace(v) == actual {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(f.Value))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(f.Value))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(actual), strings.ToLower(f.Value))
	case OpGreater:
		return compareValues(actual, f.Value, dateLike) > 0
	case OpGreaterEq:
		return compareValues(actual, f.Value, dateLike) >= 0
	case OpLess:
		return compareValues(actual, f.Value, dateLike) < 0
	case OpLessEq:
		return compareValues(actual, f.Value, dateLike) <= 0
	}
	return false
}

// compareValues orders range-filter operands: timestamps for date fields,
// numbers when both sides parse, case-insensitive strings otherwise.
func compareValues(a, b string, dateLike bool) int {
	if dateLike {
		ta, okA := parseTime(a)
		tb, okB := parseTime(b)
		if okA && okB {
			return ta.Compare(tb)
		}
	}
	na, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	nb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func matchesSearch(rec codec.Record, term string, fields []string) bool {
	if len(fields) == 0 {
		for _, v := range rec {
			if strings.Contains(strings.ToLower(codec.String(v)), term) {
				return true
			}
		}
		return false
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(codec.String(rec[f])), term) {
			return true
		}
	}
	return false
}

// sortRecords is stable: ties keep encounter order in both directions.
func sortRecords(records []codec.Record, field string, desc bool, dateFields []string) {
	dateLike := isDateField(field, dateFields)
	sort.SliceStable(records, func(i, j int) bool {
		c := compareForSort(records[i][field], records[j][field], dateLike)
		if desc {
			c = -c
		}
		return c < 0
	})
}

// compareForSort puts unparseable timestamps before valid ones.
func compareForSort(a, b any, dateLike bool) int {
	sa, sb := codec.String(a), codec.String(b)
	if dateLike {
		ta, okA := parseTime(sa)
		tb, okB := parseTime(sb)
		switch {
		case okA && okB:
			return ta.Compare(tb)
		case okA:
			return 1
		case okB:
			return -1
		}
	}
	return strings.Compare(strings.ToLower(sa), strings.ToLower(sb))
}

func paginate(records []codec.Record, page, pageSize int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total := len(records)
	out := Page{
		Data:         []codec.Record{},
		TotalRecords: total,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   (total + pageSize - 1) / pageSize,
	}

	start := (page - 1) * pageSize
	if start >= total {
		return out
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out.Data = records[start:end]
	return out
}
