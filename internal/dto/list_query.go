package dto

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// Filter query parameters use the filter[field]=op:value form, e.g.
// filter[status]=eq:open or filter[priority]=in:high,urgent. The op prefix is
// mandatory so a stray colon in a value cannot change the operator.
const filterPrefix = "filter["

// ParseListQuery converts raw URL query values into list parameters. Malformed
// paging, filter or include input is a validation error, never a silent
// default.
func ParseListQuery(values url.Values) (models.ListParams, error) {
	params := models.ListParams{
		Search:    strings.TrimSpace(values.Get("search")),
		SortBy:    strings.TrimSpace(values.Get("sort")),
		SortOrder: strings.TrimSpace(values.Get("order")),
	}

	var err error
	if params.Page, err = parseIntParam(values, "page"); err != nil {
		return models.ListParams{}, err
	}
	if params.Limit, err = parseIntParam(values, "limit"); err != nil {
		return models.ListParams{}, err
	}

	if include := strings.TrimSpace(values.Get("include")); include != "" {
		for _, name := range strings.Split(include, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return models.ListParams{}, appErrors.Clone(appErrors.ErrValidation, "empty include entry")
			}
			params.Include = append(params.Include, name)
		}
	}

	for key, raw := range values {
		if !strings.HasPrefix(key, filterPrefix) || !strings.HasSuffix(key, "]") {
			continue
		}
		field := key[len(filterPrefix) : len(key)-1]
		if field == "" {
			return models.ListParams{}, appErrors.Clone(appErrors.ErrValidation, "empty filter field")
		}
		for _, value := range raw {
			filter, err := parseFilter(field, value)
			if err != nil {
				return models.ListParams{}, err
			}
			params.Filters = append(params.Filters, filter)
		}
	}

	return params, nil
}

func parseFilter(field, value string) (models.Filter, error) {
	op, rest, found := strings.Cut(value, ":")
	if !found || rest == "" {
		return models.Filter{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("filter on %q must use op:value form", field))
	}

	operator := models.FilterOp(strings.ToLower(op))
	if !operator.Valid() {
		return models.Filter{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unknown filter operator %q", op))
	}

	filter := models.Filter{Field: field, Op: operator}
	if operator == models.OpIn {
		for _, v := range strings.Split(rest, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				return models.Filter{}, appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("empty value in %q filter on %q", op, field))
			}
			filter.Values = append(filter.Values, v)
		}
		return filter, nil
	}

	filter.Values = []string{rest}
	return filter, nil
}

func parseIntParam(values url.Values, name string) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}
