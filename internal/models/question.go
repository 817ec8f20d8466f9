package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// summaryLength caps the derived summary, ellipsis included.
const summaryLength = 125

const siteBase = "https://www.startpagina.nl/v"

var (
	nonSlugChars = regexp.MustCompile(`[^a-z ]+`)
	spaceRuns    = regexp.MustCompile(` +`)
)

// Question is the canonical document indexed in Elasticsearch. IDs come from
// the source export and are never generated here. Dead is tri-state: nil means
// the canonical URL has not been checked yet.
type Question struct {
	ID       int       `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Category string    `json:"category,omitempty"`
	Date     time.Time `json:"date,omitzero"`
	Answers  *string   `json:"answers,omitempty"`
	Dead     *bool     `json:"dead,omitempty"`
	Error    bool      `json:"error,omitempty"`
}

// Summary returns the body trimmed for result listings: bodies up to 125 runes
// come back verbatim, longer ones are cut to 122 runes plus an ellipsis.
func (q Question) Summary() string {
	runes := []rune(q.Body)
	if len(runes) <= summaryLength {
		return q.Body
	}
	return string(runes[:summaryLength-3]) + "..."
}

// URL derives the canonical question URL. The flat scheme has no category
// segment and is also used for documents indexed without a category.
func (q Question) URL(flat bool) string {
	if flat || q.Category == "" {
		return fmt.Sprintf("%s/vraag/%d/", siteBase, q.ID)
	}
	return fmt.Sprintf("%s/%s/vraag/%d", siteBase, CategorySlug(q.Category), q.ID)
}

// AppendAnswer adds an answer body, separated from earlier answers by a blank
// line. Callers own dedup: appending the same row twice duplicates it.
func (q *Question) AppendAnswer(body string) {
	if q.Answers == nil {
		q.Answers = &body
		return
	}
	joined := *q.Answers + "\n\n" + body
	q.Answers = &joined
}

// CategorySlug turns a category label into its URL path segment: lower-cased,
// non-letters dropped, space runs collapsed to a single hyphen.
func CategorySlug(category string) string {
	slug := strings.ToLower(category)
	slug = nonSlugChars.ReplaceAllString(slug, "")
	slug = strings.TrimSpace(slug)
	return spaceRuns.ReplaceAllString(slug, "-")
}
