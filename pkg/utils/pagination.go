package utils

import (
	"net/http"
	"strconv"
)

// GetPaginationParams reads ?page and ?limit, clamping to sane defaults.
func GetPaginationParams(r *http.Request) (int, int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}

// AddSorting appends an ORDER BY clause from ?sortBy/?sortOrder. Column names
// are checked against a whitelist so user input never reaches the SQL text.
// Queries must alias the transactions table as t.
func AddSorting(r *http.Request, query string) string {
	allowed := map[string]string{
		"created_at": "t.created_at",
		"amount":     "t.amount",
		"kind":       "t.kind",
	}

	column, ok := allowed[r.URL.Query().Get("sortBy")]
	if !ok {
		return query + " ORDER BY t.created_at DESC"
	}

	order := "ASC"
	if r.URL.Query().Get("sortOrder") == "desc" {
		order = "DESC"
	}
	return query + " ORDER BY " + column + " " + order
}
