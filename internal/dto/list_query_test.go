package dto

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

func TestParseListQueryFull(t *testing.T) {
	values, err := url.ParseQuery("search=heater&sort=scheduled_at&order=ASC&page=2&limit=50&include=invoices,appointments&filter[status]=eq:open&filter[priority]=in:high,urgent")
	require.NoError(t, err)

	params, parseErr := ParseListQuery(values)
	require.NoError(t, parseErr)

	assert.Equal(t, "heater", params.Search)
	assert.Equal(t, "scheduled_at", params.SortBy)
	assert.Equal(t, "ASC", params.SortOrder)
	assert.Equal(t, 2, params.Page)
	assert.Equal(t, 50, params.Limit)
	assert.Equal(t, []string{"invoices", "appointments"}, params.Include)

	require.Len(t, params.Filters, 2)
	byField := map[string]models.Filter{}
	for _, f := range params.Filters {
		byField[f.Field] = f
	}
	assert.Equal(t, models.Filter{Field: "status", Op: models.OpEq, Values: []string{"open"}}, byField["status"])
	assert.Equal(t, models.Filter{Field: "priority", Op: models.OpIn, Values: []string{"high", "urgent"}}, byField["priority"])
}

func TestParseListQueryDefaultsEmpty(t *testing.T) {
	params, err := ParseListQuery(url.Values{})
	require.NoError(t, err)
	assert.Zero(t, params.Page)
	assert.Zero(t, params.Limit)
	assert.Empty(t, params.Filters)
	assert.Empty(t, params.Include)
}

func TestParseListQueryRejections(t *testing.T) {
	cases := []struct {
		name  string
		query string
	}{
		{"non-numeric page", "page=two"},
		{"non-numeric limit", "limit=abc"},
		{"filter without operator", "filter[status]=open"},
		{"unknown operator", "filter[status]=like:open"},
		{"empty filter value", "filter[status]=eq:"},
		{"empty in entry", "filter[priority]=in:high,,urgent"},
		{"empty filter field", "filter[]=eq:open"},
		{"empty include entry", "include=invoices,,appointments"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, err := url.ParseQuery(tc.query)
			require.NoError(t, err)

			_, parseErr := ParseListQuery(values)
			var appErr *appErrors.Error
			require.ErrorAs(t, parseErr, &appErr)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestParseFilterValueMayContainColon(t *testing.T) {
	values, err := url.ParseQuery("filter[scheduled_at]=gte:2026-01-02T15:04:05Z")
	require.NoError(t, err)

	params, parseErr := ParseListQuery(values)
	require.NoError(t, parseErr)
	require.Len(t, params.Filters, 1)
	assert.Equal(t, []string{"2026-01-02T15:04:05Z"}, params.Filters[0].Values)
}
