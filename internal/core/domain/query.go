package domain

import "strings"

type QueryType string

const (
	QueryExactMatch      QueryType = "EXACT_MATCH"
	QueryAttributeFilter QueryType = "ATTRIBUTE_FILTER"
	QuerySemantic        QueryType = "SEMANTIC"
	QueryHybrid          QueryType = "HYBRID"
)

// ParseQueryType maps a case-insensitive label to a QueryType.
func ParseQueryType(raw string) (QueryType, bool) {
	switch QueryType(strings.ToUpper(strings.TrimSpace(raw))) {
	case QueryExactMatch:
		return QueryExactMatch, true
	case QueryAttributeFilter:
		return QueryAttributeFilter, true
	case QuerySemantic:
		return QuerySemantic, true
	case QueryHybrid:
		return QueryHybrid, true
	default:
		return "", false
	}
}

// AcceptsFilters reports whether classifications of this type may carry filters.
func (t QueryType) AcceptsFilters() bool {
	return t == QueryAttributeFilter || t == QueryHybrid
}

type ClassificationSource string

const (
	SourceModel          ClassificationSource = "model"
	SourceIdentifierRule ClassificationSource = "identifier_rule"
	SourceFallback       ClassificationSource = "fallback"
)

// AttributeFilter constrains structured product fields. An empty filter
// is equivalent to no filter.
type AttributeFilter struct {
	MinPower         *float64 `json:"min_power,omitempty"`
	MaxPower         *float64 `json:"max_power,omitempty"`
	MinLifetimeHours *float64 `json:"min_lifetime_hours,omitempty"`
	MaxLifetimeHours *float64 `json:"max_lifetime_hours,omitempty"`
	ColorTemperature string   `json:"color_temperature,omitempty"`
	ApplicationArea  string   `json:"application_area,omitempty"`
	IPRating         string   `json:"ip_rating,omitempty"`
	Certifications   []string `json:"certifications,omitempty"`
}

func (f AttributeFilter) IsEmpty() bool {
	return f.MinPower == nil &&
		f.MaxPower == nil &&
		f.MinLifetimeHours == nil &&
		f.MaxLifetimeHours == nil &&
		f.ColorTemperature == "" &&
		f.ApplicationArea == "" &&
		f.IPRating == "" &&
		len(f.Certifications) == 0
}

// QueryClassification is the routing decision for one query.
type QueryClassification struct {
	Query          string               `json:"query"`
	Type           QueryType            `json:"type"`
	Confidence     float64              `json:"confidence"`
	Filters        *AttributeFilter     `json:"filters,omitempty"`
	Keywords       []string             `json:"keywords"`
	Identifier     string               `json:"identifier,omitempty"`
	Source         ClassificationSource `json:"source"`
	FallbackReason string               `json:"fallback_reason,omitempty"`
}

// ExactTerm is what an exact lookup should match: the extracted identifier
// when there is one, otherwise the whole query.
func (c QueryClassification) ExactTerm() string {
	if c.Identifier != "" {
		return c.Identifier
	}
	return c.Query
}

// HasFilters reports whether a usable, non-empty filter is attached.
func (c QueryClassification) HasFilters() bool {
	return c.Filters != nil && !c.Filters.IsEmpty()
}
