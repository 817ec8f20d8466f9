package search

import (
	"strconv"
	"time"

	"github.com/goeievraag/backend/internal/elasticsearch"
)

// Response is the stable API contract returned to the front-end.
type Response struct {
	Facets  Facets `json:"facets"`
	Results []Hit  `json:"results"`
	// omitzero keeps an empty-but-present chips list distinguishable from a
	// schema without the chips capability: nil is omitted, empty marshals [].
	Chips []Chip  `json:"chips,omitzero"`
	Hits  float64 `json:"hits"`
	Took  float64 `json:"took"`
}

// Facets groups the aggregation counts accompanying a result page.
type Facets struct {
	Categories []CategoryCount `json:"categories"`
	Dates      []DateCount     `json:"dates"`
}

// CategoryCount is one category facet bucket.
type CategoryCount struct {
	Category string  `json:"category"`
	Count    float64 `json:"count"`
}

// DateCount is one year bucket, keyed by its epoch timestamp in seconds.
type DateCount struct {
	Key   float64 `json:"key"`
	Count int64   `json:"count"`
}

// Chip is one suggested term from the significance aggregation.
type Chip struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Hit is one normalized search result.
type Hit struct {
	ID       int       `json:"id"`
	Score    float64   `json:"score"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Category string    `json:"category"`
	Date     time.Time `json:"date,omitzero"`
	URL      string    `json:"url"`
	Dead     bool      `json:"dead"`
}

// Normalize converts a raw engine result into the API response shape: hit
// summaries, rounded facet counts and chip suggestions.
func Normalize(raw *elasticsearch.RawResult, caps Capabilities) Response {
	resp := Response{
		Results: make([]Hit, 0, len(raw.Hits)),
		Facets: Facets{
			Categories: make([]CategoryCount, 0),
			Dates:      make([]DateCount, 0),
		},
		Hits: RoundSigFig(float64(raw.Total), 4),
		Took: float64(raw.Took) / 1000,
	}

	for _, hit := range raw.Hits {
		doc := hit.Source
		if doc.ID == 0 {
			if id, err := strconv.Atoi(hit.ID); err == nil {
				doc.ID = id
			}
		}

		// Legacy documents predate the dead flag; absent means alive.
		dead := doc.Dead != nil && *doc.Dead

		resp.Results = append(resp.Results, Hit{
			ID:       doc.ID,
			Score:    hit.Score,
			Title:    doc.Title,
			Body:     doc.Summary(),
			Category: doc.Category,
			Date:     doc.Date,
			URL:      doc.URL(caps.FlatURLs),
			Dead:     dead,
		})
	}

	for _, b := range raw.Aggregations["categories"].Buckets {
		name, _ := b.Key.(string)
		resp.Facets.Categories = append(resp.Facets.Categories, CategoryCount{
			Category: name,
			Count:    RoundSigFig(float64(b.DocCount), 3),
		})
	}

	if caps.DateFacet {
		for _, b := range raw.Aggregations["dates"].Buckets {
			millis, _ := b.Key.(float64)
			resp.Facets.Dates = append(resp.Facets.Dates, DateCount{
				Key:   millis / 1000,
				Count: b.DocCount,
			})
		}
	}

	if caps.Chips {
		chips := make([]Chip, 0, len(raw.Aggregations["chips"].Buckets))
		for _, b := range raw.Aggregations["chips"].Buckets {
			term, _ := b.Key.(string)
			chips = append(chips, Chip{Key: term, Count: b.DocCount})
		}
		resp.Chips = chips
	}

	return resp
}

// RoundSigFig rounds to the given number of significant figures regardless of
// magnitude, e.g. 12345 -> 12300 at 3 figures.
func RoundSigFig(value float64, figures int) float64 {
	formatted := strconv.FormatFloat(value, 'g', figures, 64)
	rounded, err := strconv.ParseFloat(formatted, 64)
	if err != nil {
		return value
	}
	return rounded
}
