package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/goeievraag/backend/internal/elasticsearch"
	"github.com/goeievraag/backend/internal/models"
)

// Store is the document-store surface the pipeline writes through.
type Store interface {
	Upsert(ctx context.Context, doc models.Question) error
	Get(ctx context.Context, id int) (models.Question, error)
}

// Stats counts the rows handled by one import stage.
type Stats struct {
	Read    int
	Indexed int
	Skipped int
}

// Pipeline loads the three CSV exports into the document store. Stages run in
// a fixed order because questions join through the categories mapping.
type Pipeline struct {
	store    Store
	log      *slog.Logger
	progress bool
}

// New builds a pipeline writing through store. With progress enabled each
// stage renders a terminal progress bar.
func New(store Store, log *slog.Logger, progress bool) *Pipeline {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{store: store, log: log, progress: progress}
}

// Run executes the stages whose path is non-empty: categories, then questions,
// then answers. An empty path skips that stage, which allows partial
// re-imports such as reloading answers only.
//
// Re-running categories and questions is idempotent (upsert by id). The
// answers stage is not: it appends to existing documents, so re-running it
// over the same dataset duplicates answer text.
func (p *Pipeline) Run(ctx context.Context, categoriesPath, questionsPath, answersPath string) error {
	var categories map[int]string

	if categoriesPath != "" {
		var err error
		categories, err = p.loadCategories(categoriesPath)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		p.log.Info("categories loaded", slog.Int("count", len(categories)))
	}

	if questionsPath != "" {
		if len(categories) == 0 {
			return errors.New("questions import requires a categories file")
		}
		stats, err := p.importQuestions(ctx, questionsPath, categories)
		p.logStage("questions", stats)
		if err != nil {
			return fmt.Errorf("import questions: %w", err)
		}
	}

	if answersPath != "" {
		stats, err := p.importAnswers(ctx, answersPath)
		p.logStage("answers", stats)
		if err != nil {
			return fmt.Errorf("import answers: %w", err)
		}
	}

	return nil
}

// loadCategories builds the category_id -> label mapping. Categories are small
// and curated, so any malformed row aborts the stage instead of being skipped.
func (p *Pipeline) loadCategories(path string) (map[int]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bar := p.newBar(path, "categories")
	defer finishBar(bar)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	categories := make(map[int]string)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("category row has %d fields, want at least 3", len(row))
		}

		id, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("category id %q: %w", row[0], err)
		}

		categories[id] = row[2]
		_ = bar.Add(1)
	}

	return categories, nil
}

// importQuestions streams the questions export, joins each row through the
// categories mapping and upserts one document per row. A corrupt row is
// skipped; only store failures abort the batch.
func (p *Pipeline) importQuestions(ctx context.Context, path string, categories map[int]string) (Stats, error) {
	var stats Stats

	f, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	bar := p.newBar(path, "questions")
	defer finishBar(bar)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Read++
		_ = bar.Add(1)
		if err != nil {
			stats.Skipped++
			continue
		}

		doc, ok := questionFromRow(row, categories)
		if !ok {
			stats.Skipped++
			continue
		}

		if err := p.store.Upsert(ctx, doc); err != nil {
			return stats, fmt.Errorf("upsert question %d: %w", doc.ID, err)
		}
		stats.Indexed++
	}

	return stats, nil
}

// importAnswers appends each answer row to its question document. Rows whose
// question is missing from the store are skipped, like malformed rows.
func (p *Pipeline) importAnswers(ctx context.Context, path string) (Stats, error) {
	var stats Stats

	f, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	bar := p.newBar(path, "answers")
	defer finishBar(bar)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Read++
		_ = bar.Add(1)
		if err != nil || len(row) < 5 {
			stats.Skipped++
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil {
			stats.Skipped++
			continue
		}

		doc, err := p.store.Get(ctx, id)
		if errors.Is(err, elasticsearch.ErrNotFound) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("get question %d: %w", id, err)
		}

		doc.AppendAnswer(row[4])
		if err := p.store.Upsert(ctx, doc); err != nil {
			return stats, fmt.Errorf("upsert question %d: %w", id, err)
		}
		stats.Indexed++
	}

	return stats, nil
}

// questionFromRow maps (id, date, _, category_id, title, body...) onto a
// document. Trailing body columns are continuation lines from the export
// format and get joined with newlines.
func questionFromRow(row []string, categories map[int]string) (models.Question, bool) {
	if len(row) < 5 {
		return models.Question{}, false
	}

	id, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return models.Question{}, false
	}

	categoryID, err := strconv.Atoi(strings.TrimSpace(row[3]))
	if err != nil {
		return models.Question{}, false
	}

	label, ok := categories[categoryID]
	if !ok {
		return models.Question{}, false
	}

	return models.Question{
		ID:       id,
		Title:    row[4],
		Body:     strings.Join(row[5:], "\n"),
		Category: label,
		Date:     parseDate(row[1]),
	}, true
}

// parseDate is lenient: an unparseable date leaves the field unset without
// skipping the row.
func parseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC3339,
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}

func (p *Pipeline) logStage(stage string, stats Stats) {
	p.log.Info("stage finished",
		slog.String("stage", stage),
		slog.Int("read", stats.Read),
		slog.Int("indexed", stats.Indexed),
		slog.Int("skipped", stats.Skipped),
	)
}

func (p *Pipeline) newBar(path, stage string) *progressbar.ProgressBar {
	total := countLines(path)
	if !p.progress {
		return progressbar.DefaultSilent(total)
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("importing "+stage),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
	)
}

func finishBar(bar *progressbar.ProgressBar) {
	_ = bar.Finish()
}

// countLines makes a cheap first pass so the bar can show a bounded total.
func countLines(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return -1
	}
	defer f.Close()

	var count int64
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		count += int64(bytes.Count(buf[:n], []byte{'\n'}))
		if err != nil {
			break
		}
	}
	return count
}
