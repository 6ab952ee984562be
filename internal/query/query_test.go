package query

import (
	"fmt"
	"testing"

	"github.com/JonMunkholm/credstore/internal/codec"
)

// fortyProviders returns 40 records named "Provider 01".."Provider 40" in
// reverse order, with status cycling Active/Pending/Inactive/Active.
func fortyProviders() []codec.Record {
	statuses := []string{"Active", "Pending", "Inactive", "Active"}
	out := make([]codec.Record, 0, 40)
	for i := 40; i >= 1; i-- {
		out = append(out, codec.Record{
			"id":     fmt.Sprintf("p%02d", i),
			"name":   fmt.Sprintf("Provider %02d", i),
			"status": statuses[i%4],
		})
	}
	return out
}

func TestList_SecondPageOfForty(t *testing.T) {
	page := List(fortyProviders(), Options{
		SortBy:    "name",
		SortOrder: "asc",
		Page:      2,
		PageSize:  15,
	})

	if page.TotalRecords != 40 {
		t.Errorf("TotalRecords = %d, want 40", page.TotalRecords)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if len(page.Data) != 15 {
		t.Fatalf("len(Data) = %d, want 15", len(page.Data))
	}
	for i, rec := range page.Data {
		want := fmt.Sprintf("Provider %02d", i+16)
		if rec["name"] != want {
			t.Errorf("Data[%d].name = %v, want %s", i, rec["name"], want)
		}
	}
}

func TestList_Defaults(t *testing.T) {
	page := List(fortyProviders(), Options{})
	if page.Page != 1 || page.PageSize != 15 {
		t.Errorf("Page, PageSize = %d, %d, want 1, 15", page.Page, page.PageSize)
	}
	if len(page.Data) != 15 {
		t.Errorf("len(Data) = %d, want 15", len(page.Data))
	}
	if page.Data[0]["name"] != "Provider 40" {
		t.Errorf("unsorted listing should keep input order, got %v first", page.Data[0]["name"])
	}
}

func TestList_NoUpperBoundOnPageSize(t *testing.T) {
	page := List(fortyProviders(), Options{PageSize: 100000})
	if len(page.Data) != 40 {
		t.Errorf("len(Data) = %d, want 40", len(page.Data))
	}
}

func TestList_PagePastEnd(t *testing.T) {
	page := List(fortyProviders(), Options{Page: 9, PageSize: 15})
	if page.Data == nil || len(page.Data) != 0 {
		t.Errorf("Data = %v, want empty non-nil slice", page.Data)
	}
	if page.TotalRecords != 40 {
		t.Errorf("TotalRecords = %d, want 40", page.TotalRecords)
	}
}

func TestList_Filters(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filter
		want    int
	}{
		{"eq", []Filter{{Field: "status", Operator: OpEquals, Value: "Pending"}}, 10},
		{"in set", []Filter{{Field: "status", Operator: OpIn, Value: "Pending, Inactive"}}, 20},
		{"empty value ignored", []Filter{{Field: "status", Operator: OpEquals, Value: ""}}, 40},
		{"eq is case sensitive", []Filter{{Field: "status", Operator: OpEquals, Value: "pending"}}, 0},
		{"contains", []Filter{{Field: "name", Operator: OpContains, Value: "provider 1"}}, 10},
		{"starts", []Filter{{Field: "id", Operator: OpStartsWith, Value: "p3"}}, 10},
		{"and combined", []Filter{
			{Field: "status", Operator: OpEquals, Value: "Active"},
			{Field: "id", Operator: OpStartsWith, Value: "p0"},
		}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := List(fortyProviders(), Options{Filters: tt.filters, PageSize: 100})
			if page.TotalRecords != tt.want {
				t.Errorf("TotalRecords = %d, want %d", page.TotalRecords, tt.want)
			}
		})
	}
}

func TestList_RangeFilters(t *testing.T) {
	records := []codec.Record{
		{"id": "a", "score": float64(5), "dueDate": "2025-01-10"},
		{"id": "b", "score": float64(12), "dueDate": "03/01/2025"},
		{"id": "c", "score": float64(40), "dueDate": "2024-12-31"},
	}

	page := List(records, Options{Filters: []Filter{{Field: "score", Operator: OpGreaterEq, Value: "12"}}})
	if page.TotalRecords != 2 {
		t.Errorf("score >= 12: TotalRecords = %d, want 2", page.TotalRecords)
	}

	page = List(records, Options{Filters: []Filter{{Field: "dueDate", Operator: OpLess, Value: "2025-02-01"}}})
	if page.TotalRecords != 2 {
		t.Errorf("dueDate < 2025-02-01: TotalRecords = %d, want 2", page.TotalRecords)
	}
}

func TestList_SearchUsesDeclaredFields(t *testing.T) {
	records := []codec.Record{
		{"id": "1", "name": "Acme Clinic", "notes": "downtown"},
		{"id": "2", "name": "Harbor Health", "notes": "acme referral"},
	}

	page := List(records, Options{SearchTerm: "ACME", SearchFields: []string{"name"}})
	if page.TotalRecords != 1 || page.Data[0]["id"] != "1" {
		t.Errorf("search on name = %+v, want only record 1", page.Data)
	}

	page = List(records, Options{SearchTerm: "acme"})
	if page.TotalRecords != 2 {
		t.Errorf("search on all fields: TotalRecords = %d, want 2", page.TotalRecords)
	}
}

func TestList_SortIsStableInBothDirections(t *testing.T) {
	records := []codec.Record{
		{"id": "1", "status": "open"},
		{"id": "2", "status": "Closed"},
		{"id": "3", "status": "Open"},
		{"id": "4", "status": "closed"},
	}

	asc := List(records, Options{SortBy: "status"})
	assertOrder(t, "asc", asc.Data, "2", "4", "1", "3")

	desc := List(records, Options{SortBy: "status", SortOrder: "desc"})
	assertOrder(t, "desc", desc.Data, "1", "3", "2", "4")
}

func TestList_SortsDateFieldsChronologically(t *testing.T) {
	records := []codec.Record{
		{"id": "a", "createdAt": "2025-03-01T10:00:00Z"},
		{"id": "b", "createdAt": "2024-12-25T08:00:00Z"},
		{"id": "c", "createdAt": ""},
		{"id": "d", "createdAt": "2025-01-15T00:00:00Z"},
	}

	page := List(records, Options{SortBy: "createdAt"})
	assertOrder(t, "createdAt asc", page.Data, "c", "b", "d", "a")

	// mixed layouts only order correctly when compared as timestamps
	mixed := []codec.Record{
		{"id": "x", "expiry": "12/01/2024"},
		{"id": "y", "expiry": "2024-02-01"},
	}
	page = List(mixed, Options{SortBy: "expiry", DateFields: []string{"expiry"}})
	assertOrder(t, "declared date field", page.Data, "y", "x")
}

func TestList_DoesNotModifyInput(t *testing.T) {
	records := fortyProviders()
	first := records[0]["id"]
	List(records, Options{SortBy: "name"})
	if records[0]["id"] != first {
		t.Errorf("input reordered: first = %v, want %v", records[0]["id"], first)
	}
}

func TestOperator_Valid(t *testing.T) {
	if !OpIn.Valid() || Operator("like").Valid() {
		t.Error("Valid() mismatch for in/like")
	}
}

func assertOrder(t *testing.T, label string, data []codec.Record, ids ...string) {
	t.Helper()
	if len(data) != len(ids) {
		t.Fatalf("%s: got %d records, want %d", label, len(data), len(ids))
	}
	for i, id := range ids {
		if data[i]["id"] != id {
			t.Errorf("%s: position %d = %v, want %s", label, i, data[i]["id"], id)
		}
	}
}
