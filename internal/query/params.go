package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/phrazzld/resource-api/internal/domain"
)

// Query parameter names understood by ParseCriteria.
const (
	ParamMatch = "q"
	ParamField = "field"
	ParamRange = "range"
	ParamMin   = "min"
	ParamMax   = "max"
	ParamPage  = "page"
	ParamLimit = "limit"
)

// ParseCriteria builds a Criteria from request query values for records of kind.
//
// Missing fields fall back to the kind's SearchField and RangeField. A value
// given under the search field's own name (?name=ada) is accepted as the text
// match, and minX/maxX are accepted as bounds on field X.
func ParseCriteria(values url.Values, kind domain.Kind) (Criteria, error) {
	criteria := Criteria{
		MatchField: kind.SearchField,
		RangeField: kind.RangeField,
		Page:       DefaultPage,
		Size:       DefaultSize,
	}

	if f := strings.TrimSpace(values.Get(ParamField)); f != "" {
		if err := searchable(kind, f, ParamField); err != nil {
			return Criteria{}, err
		}
		criteria.MatchField = f
	}
	criteria.Match = strings.TrimSpace(values.Get(ParamMatch))
	if criteria.Match == "" && criteria.MatchField != "" {
		criteria.Match = strings.TrimSpace(values.Get(criteria.MatchField))
	}
	if criteria.Match != "" && criteria.MatchField == "" {
		return Criteria{}, domain.NewValidationError(ParamField, "is required when searching this kind", domain.ErrInvalidFormat)
	}

	if f := strings.TrimSpace(values.Get(ParamRange)); f != "" {
		if err := searchable(kind, f, ParamRange); err != nil {
			return Criteria{}, err
		}
		criteria.RangeField = f
	}

	var err error
	if criteria.Min, err = bound(values, ParamMin, criteria.RangeField); err != nil {
		return Criteria{}, err
	}
	if criteria.Max, err = bound(values, ParamMax, criteria.RangeField); err != nil {
		return Criteria{}, err
	}
	if (criteria.Min != nil || criteria.Max != nil) && criteria.RangeField == "" {
		return Criteria{}, domain.NewValidationError(ParamRange, "is required when filtering this kind by range", domain.ErrInvalidFormat)
	}
	if criteria.Min != nil && criteria.Max != nil && *criteria.Min > *criteria.Max {
		return Criteria{}, domain.NewValidationError(ParamMin, "must not exceed max", domain.ErrInvalidFormat)
	}

	if criteria.Page, err = positive(values, ParamPage, DefaultPage, 0); err != nil {
		return Criteria{}, err
	}
	if criteria.Size, err = positive(values, ParamLimit, DefaultSize, MaxSize); err != nil {
		return Criteria{}, err
	}

	return criteria, nil
}

func searchable(kind domain.Kind, name, param string) error {
	if name == domain.FieldID {
		return nil
	}
	if _, ok := kind.Field(name); !ok {
		return domain.NewValidationError(param, "unknown field "+strconv.Quote(name), domain.ErrUnknownField)
	}
	return nil
}

// bound reads a numeric bound from param or, failing that, from param+field
// (minAge style).
func bound(values url.Values, param, field string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(param))
	if raw == "" && field != "" {
		raw = strings.TrimSpace(values.Get(param + strings.ToUpper(field[:1]) + field[1:]))
	}
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.NewValidationError(param, "must be a number", domain.ErrInvalidFormat)
	}
	return &n, nil
}

// positive parses a positive integer parameter. max of 0 means unbounded.
func positive(values url.Values, param string, def, max int) (int, error) {
	raw := strings.TrimSpace(values.Get(param))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.NewValidationError(param, "must be a positive integer", domain.ErrInvalidFormat)
	}
	if max > 0 && n > max {
		return 0, domain.NewValidationError(param, "must not exceed "+strconv.Itoa(max), domain.ErrInvalidFormat)
	}
	return n, nil
}
