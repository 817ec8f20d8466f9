package liveness

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/goeievraag/backend/internal/models"
)

// Store is the document-store surface the sweeper reads and mutates.
type Store interface {
	Scan(ctx context.Context, batchSize int, fn func(models.Question) error) error
	UpdateFields(ctx context.Context, id int, fields map[string]any) error
}

// Prober issues one liveness check and reports the HTTP status.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// Config tunes one sweep run.
type Config struct {
	Workers      int
	Rate         float64 // probes per second across all workers
	ScanBatch    int
	PersistAlive bool
	FlatURLs     bool
}

// Stats summarizes one sweep pass.
type Stats struct {
	Scanned      int64
	Skipped      int64
	Dead         int64
	Alive        int64
	Errored      int64
	Inconclusive int64
}

// Sweeper classifies the canonical URL of every unchecked document. Documents
// with a dead or error flag already set are never re-probed, which makes
// repeated sweeps resumable.
type Sweeper struct {
	store   Store
	prober  Prober
	limiter *rate.Limiter
	cfg     Config
	log     *slog.Logger
}

// New builds a sweeper. Zero config values fall back to sane defaults.
func New(store Store, prober Prober, cfg Config, log *slog.Logger) *Sweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 5
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 500
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Sweeper{
		store:   store,
		prober:  prober,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		cfg:     cfg,
		log:     log,
	}
}

type counters struct {
	scanned      atomic.Int64
	skipped      atomic.Int64
	dead         atomic.Int64
	alive        atomic.Int64
	errored      atomic.Int64
	inconclusive atomic.Int64
}

// Sweep runs one full pass over the corpus with bounded probe concurrency.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	var c counters

	docs := make(chan models.Question, s.cfg.Workers)
	var wg sync.WaitGroup
	for range s.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range docs {
				s.classify(ctx, doc, &c)
			}
		}()
	}

	scanErr := s.store.Scan(ctx, s.cfg.ScanBatch, func(doc models.Question) error {
		c.scanned.Add(1)

		// Already classified, terminal either way.
		if doc.Dead != nil || doc.Error {
			c.skipped.Add(1)
			return nil
		}

		select {
		case docs <- doc:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(docs)
	wg.Wait()

	stats := Stats{
		Scanned:      c.scanned.Load(),
		Skipped:      c.skipped.Load(),
		Dead:         c.dead.Load(),
		Alive:        c.alive.Load(),
		Errored:      c.errored.Load(),
		Inconclusive: c.inconclusive.Load(),
	}

	s.log.Info("sweep finished",
		slog.Int64("scanned", stats.Scanned),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("dead", stats.Dead),
		slog.Int64("alive", stats.Alive),
		slog.Int64("errored", stats.Errored),
		slog.Int64("inconclusive", stats.Inconclusive),
	)

	return stats, scanErr
}

func (s *Sweeper) classify(ctx context.Context, doc models.Question, c *counters) {
	if err := s.limiter.Wait(ctx); err != nil {
		c.inconclusive.Add(1)
		return
	}

	status, err := s.prober.Probe(ctx, doc.URL(s.cfg.FlatURLs))
	if err != nil {
		// Transport failure or timeout: leave the document untouched so the
		// next sweep retries it.
		c.inconclusive.Add(1)
		s.log.Debug("probe inconclusive", slog.Int("id", doc.ID), slog.Any("err", err))
		return
	}

	switch {
	case status == http.StatusNotFound:
		if s.persist(ctx, doc.ID, map[string]any{"dead": true}) {
			c.dead.Add(1)
		} else {
			c.inconclusive.Add(1)
		}
	case status == http.StatusFound:
		// The inherited behavior never persisted the alive classification,
		// re-probing live documents on every sweep. PersistAlive keeps that
		// behavior reachable while defaulting to recording the result.
		if !s.cfg.PersistAlive {
			c.alive.Add(1)
			return
		}
		if s.persist(ctx, doc.ID, map[string]any{"dead": false}) {
			c.alive.Add(1)
		} else {
			c.inconclusive.Add(1)
		}
	case status >= http.StatusInternalServerError:
		if s.persist(ctx, doc.ID, map[string]any{"error": true}) {
			c.errored.Add(1)
		} else {
			c.inconclusive.Add(1)
		}
	default:
		c.inconclusive.Add(1)
	}
}

func (s *Sweeper) persist(ctx context.Context, id int, fields map[string]any) bool {
	if err := s.store.UpdateFields(ctx, id, fields); err != nil {
		s.log.Warn("persist classification", slog.Int("id", id), slog.Any("err", err))
		return false
	}
	return true
}

// HTTPProber issues HEAD requests without following redirects, so a redirect
// status stays observable as the liveness signal.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds a prober with the given per-request timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe performs a single HEAD request and returns the response status.
func (p *HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()

	return res.StatusCode, nil
}
