package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/goeievraag/backend/internal/models"
)

// ErrNotFound is returned by Get when the index has no document with that id.
var ErrNotFound = errors.New("document not found")

const scrollKeepAlive = time.Minute

// Client wraps go-elasticsearch with helpers tailored to this project.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// RawHit is a single search hit before normalization.
type RawHit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source models.Question `json:"_source"`
}

// Bucket is one aggregation bucket. Key is a string for terms and
// significant_terms aggregations and an epoch-millis number for date
// histograms.
type Bucket struct {
	Key         any    `json:"key"`
	KeyAsString string `json:"key_as_string,omitempty"`
	DocCount    int64  `json:"doc_count"`
}

// Aggregation holds the buckets of one named aggregation.
type Aggregation struct {
	Buckets []Bucket `json:"buckets"`
}

// RawResult bundles everything the normalizer needs from a search response.
type RawResult struct {
	Took         int64
	Total        int64
	Hits         []RawHit
	Aggregations map[string]Aggregation
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Upsert writes a document under its external id, overwriting any previous
// version. Re-running an upsert for the same id is idempotent.
func (c *Client) Upsert(ctx context.Context, doc models.Question) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: strconv.Itoa(doc.ID),
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc %d: %w", doc.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc %d failed: %s", doc.ID, strings.TrimSpace(string(body)))
	}

	return nil
}

// Get fetches a document by id, returning ErrNotFound on a miss.
func (c *Client) Get(ctx context.Context, id int) (models.Question, error) {
	req := esapi.GetRequest{
		Index:      c.index,
		DocumentID: strconv.Itoa(id),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return models.Question{}, fmt.Errorf("get doc %d: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return models.Question{}, ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return models.Question{}, fmt.Errorf("get doc %d failed: %s", id, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Source models.Question `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return models.Question{}, fmt.Errorf("decode get response: %w", err)
	}

	doc := parsed.Source
	doc.ID = id
	return doc, nil
}

// UpdateFields applies a partial document update, leaving other fields intact.
func (c *Client) UpdateFields(ctx context.Context, id int, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"doc": fields})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      c.index,
		DocumentID: strconv.Itoa(id),
		Body:       bytes.NewReader(payload),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("update doc %d: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("update doc %d failed: %s", id, strings.TrimSpace(string(body)))
	}

	return nil
}

// Scan iterates the whole index in scroll batches, invoking fn for every
// document. Iteration stops on the first fn error.
func (c *Client) Scan(ctx context.Context, batchSize int, fn func(models.Question) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	body := map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []string{"_doc"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal scan body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
		c.es.Search.WithSize(batchSize),
		c.es.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return fmt.Errorf("open scroll: %w", err)
	}

	scrollID, hits, err := c.decodeScrollPage(res)
	if err != nil {
		return err
	}
	defer func() { c.clearScroll(scrollID) }()

	for len(hits) > 0 {
		for _, hit := range hits {
			doc := hit.Source
			if doc.ID == 0 {
				if id, convErr := strconv.Atoi(hit.ID); convErr == nil {
					doc.ID = id
				}
			}
			if err := fn(doc); err != nil {
				return err
			}
		}

		res, err := c.es.Scroll(
			c.es.Scroll.WithContext(ctx),
			c.es.Scroll.WithScrollID(scrollID),
			c.es.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return fmt.Errorf("continue scroll: %w", err)
		}

		scrollID, hits, err = c.decodeScrollPage(res)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) decodeScrollPage(res *esapi.Response) (string, []RawHit, error) {
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return "", nil, fmt.Errorf("scroll failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		ScrollID string `json:"_scroll_id"`
		Hits     struct {
			Hits []RawHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", nil, fmt.Errorf("decode scroll response: %w", err)
	}

	return parsed.ScrollID, parsed.Hits.Hits, nil
}

func (c *Client) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}

	res, err := c.es.ClearScroll(c.es.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		c.log.Debug("clear scroll", slog.Any("err", err))
		return
	}
	res.Body.Close()
}

// Search executes a prepared query body and decodes hits plus raw aggregation
// buckets for the normalizer.
func (c *Client) Search(ctx context.Context, body map[string]any) (*RawResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []RawHit `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]Aggregation `json:"aggregations"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return &RawResult{
		Took:         parsed.Took,
		Total:        parsed.Hits.Total.Value,
		Hits:         parsed.Hits.Hits,
		Aggregations: parsed.Aggregations,
	}, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
