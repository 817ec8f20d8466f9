package search

import (
	"strings"
)

// PageSize is the fixed number of hits per result page.
const PageSize = 10

// chipCount caps the significant_terms suggestion list.
const chipCount = 40

// Capabilities describes which clauses the active index schema supports. Each
// flag toggles exactly one query clause or response field, so every schema
// version flows through the same builder.
type Capabilities struct {
	DateFacet      bool
	FilterDead     bool
	Chips          bool
	ChipsNegatives bool
	FlatURLs       bool
}

// Request is a parsed incoming search request.
type Request struct {
	Query      string
	Categories []string
	Years      []string
	Page       int
}

// BuildQuery translates a request into a complete Elasticsearch query body:
// text match, post-filter, aggregations and pagination. It performs no I/O.
func BuildQuery(req Request, caps Capabilities) map[string]any {
	page := req.Page
	if page < 1 {
		page = 1
	}

	body := map[string]any{
		"from":             (page - 1) * PageSize,
		"size":             PageSize,
		"track_total_hits": true,
		"query":            buildMatch(req.Query, caps),
		"aggs":             buildAggs(caps),
	}

	if filter := buildPostFilter(req); filter != nil {
		body["post_filter"] = filter
	}

	return body
}

func buildMatch(query string, caps Capabilities) map[string]any {
	match := map[string]any{
		"match_all": map[string]any{},
	}
	if strings.TrimSpace(query) != "" {
		match = map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title", "body"},
			},
		}
	}

	if !caps.FilterDead {
		return match
	}

	return map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{match},
			"filter": []map[string]any{
				{"term": map[string]any{"dead": false}},
			},
		},
	}
}

// buildPostFilter restricts the hit list without narrowing the aggregations.
// It returns nil when no usable filter remains, so an empty filter never
// suppresses all hits.
func buildPostFilter(req Request) map[string]any {
	filters := make([]map[string]any, 0, 2)

	if len(req.Categories) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{
				"category": req.Categories,
			},
		})
	}

	ranges := make([]map[string]any, 0, len(req.Years))
	for _, year := range req.Years {
		year = strings.TrimSpace(year)
		if year == "" {
			continue
		}
		ranges = append(ranges, map[string]any{
			"range": map[string]any{
				"date": map[string]any{
					"gte": year + "-01-01",
					"lte": year + "-12-31",
				},
			},
		})
	}
	if len(ranges) > 0 {
		filters = append(filters, map[string]any{
			"bool": map[string]any{
				"should":               ranges,
				"minimum_should_match": 1,
			},
		})
	}

	if len(filters) == 0 {
		return nil
	}

	return map[string]any{
		"bool": map[string]any{
			"filter": filters,
		},
	}
}

func buildAggs(caps Capabilities) map[string]any {
	aggs := map[string]any{
		"categories": map[string]any{
			"terms": map[string]any{
				"field": "category",
			},
		},
	}

	if caps.DateFacet {
		aggs["dates"] = map[string]any{
			"date_histogram": map[string]any{
				"field":             "date",
				"calendar_interval": "year",
			},
		}
	}

	if caps.Chips {
		aggs["chips"] = map[string]any{
			"significant_terms": map[string]any{
				"field": "body",
				"size":  chipCount,
				"mutual_information": map[string]any{
					"include_negatives": caps.ChipsNegatives,
				},
			},
		}
	}

	return aggs
}
