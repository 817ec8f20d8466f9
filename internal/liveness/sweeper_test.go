package liveness_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goeievraag/backend/internal/liveness"
	"github.com/goeievraag/backend/internal/models"
)

type stubStore struct {
	mu        sync.Mutex
	docs      []models.Question
	updates   map[int]map[string]any
	updateErr error
}

func newStubStore(docs ...models.Question) *stubStore {
	return &stubStore{docs: docs, updates: make(map[int]map[string]any)}
}

func (s *stubStore) Scan(_ context.Context, _ int, fn func(models.Question) error) error {
	for _, doc := range s.docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubStore) UpdateFields(_ context.Context, id int, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates[id] = fields
	return nil
}

func (s *stubStore) update(id int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

type stubProber struct {
	mu    sync.Mutex
	byURL map[string]int
	err   error
	calls int
}

func newStubProber(byURL map[string]int) *stubProber {
	return &stubProber{byURL: byURL}
}

func (p *stubProber) Probe(_ context.Context, url string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.byURL[url], nil
}

func (p *stubProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func sweep(t *testing.T, store *stubStore, prober liveness.Prober, cfg liveness.Config) liveness.Stats {
	t.Helper()
	s := liveness.New(store, prober, cfg, nil)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	return stats
}

func flatURL(id int) string {
	return models.Question{ID: id}.URL(true)
}

func TestSweepClassifiesDeadDocument(t *testing.T) {
	store := newStubStore(models.Question{ID: 1, Body: "b"})
	prober := newStubProber(map[string]int{flatURL(1): http.StatusNotFound})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Equal(t, int64(1), stats.Dead)
	require.Equal(t, map[string]any{"dead": true}, store.update(1))
}

func TestSweepServerErrorSetsErrorFlag(t *testing.T) {
	store := newStubStore(models.Question{ID: 2})
	prober := newStubProber(map[string]int{flatURL(2): http.StatusInternalServerError})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Equal(t, int64(1), stats.Errored)
	require.Equal(t, map[string]any{"error": true}, store.update(2))
}

func TestSweepInconclusiveStatusLeavesDocumentAlone(t *testing.T) {
	store := newStubStore(models.Question{ID: 3})
	prober := newStubProber(map[string]int{flatURL(3): http.StatusOK})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Equal(t, int64(1), stats.Inconclusive)
	require.Empty(t, store.updates)
}

func TestSweepRedirectPersistsAlive(t *testing.T) {
	store := newStubStore(models.Question{ID: 4})
	prober := newStubProber(map[string]int{flatURL(4): http.StatusFound})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true, PersistAlive: true})

	require.Equal(t, int64(1), stats.Alive)
	require.Equal(t, map[string]any{"dead": false}, store.update(4))
}

func TestSweepRedirectWithoutPersistAlive(t *testing.T) {
	store := newStubStore(models.Question{ID: 5})
	prober := newStubProber(map[string]int{flatURL(5): http.StatusFound})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Equal(t, int64(1), stats.Alive)
	require.Empty(t, store.updates, "legacy mode leaves alive documents unpersisted")
}

func TestSweepRedirectPersistFailureIsInconclusive(t *testing.T) {
	store := newStubStore(models.Question{ID: 12})
	store.updateErr = errors.New("version conflict")
	prober := newStubProber(map[string]int{flatURL(12): http.StatusFound})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true, PersistAlive: true})

	require.Zero(t, stats.Alive, "an unpersisted classification must not count as classified")
	require.Equal(t, int64(1), stats.Inconclusive)
}

func TestSweepDeadPersistFailureIsInconclusive(t *testing.T) {
	store := newStubStore(models.Question{ID: 13})
	store.updateErr = errors.New("version conflict")
	prober := newStubProber(map[string]int{flatURL(13): http.StatusNotFound})

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Zero(t, stats.Dead)
	require.Equal(t, int64(1), stats.Inconclusive)
}

func TestSweepSkipsClassifiedDocuments(t *testing.T) {
	dead := true
	alive := false
	store := newStubStore(
		models.Question{ID: 6, Dead: &dead},
		models.Question{ID: 7, Dead: &alive},
		models.Question{ID: 8, Error: true},
	)
	prober := newStubProber(nil)

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Equal(t, int64(3), stats.Scanned)
	require.Equal(t, int64(3), stats.Skipped)
	require.Zero(t, prober.callCount(), "classified documents must never be re-probed")

	// A second pass still probes nothing.
	stats = sweep(t, store, prober, liveness.Config{FlatURLs: true})
	require.Zero(t, prober.callCount())
	require.Equal(t, int64(3), stats.Skipped)
}

func TestSweepProbeErrorIsInconclusive(t *testing.T) {
	store := newStubStore(models.Question{ID: 9})
	prober := newStubProber(nil)
	prober.err = errors.New("dial timeout")

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true})

	require.Equal(t, int64(1), stats.Inconclusive)
	require.Empty(t, store.updates)
}

func TestSweepCategoryURLScheme(t *testing.T) {
	doc := models.Question{ID: 10, Category: "Sport"}
	store := newStubStore(doc)
	prober := newStubProber(map[string]int{doc.URL(false): http.StatusNotFound})

	stats := sweep(t, store, prober, liveness.Config{Rate: 100})

	require.Equal(t, int64(1), stats.Dead)
}

func TestHTTPProberDoesNotFollowRedirects(t *testing.T) {
	var method string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer target.Close()

	prober := liveness.NewHTTPProber(2 * time.Second)
	status, err := prober.Probe(context.Background(), target.URL)

	require.NoError(t, err)
	require.Equal(t, http.StatusFound, status, "redirects are the liveness signal and must not be followed")
	require.Equal(t, http.MethodHead, method)
}

func TestSweepManyDocumentsBoundedWorkers(t *testing.T) {
	docs := make([]models.Question, 0, 50)
	byURL := make(map[string]int, 50)
	for i := 1; i <= 50; i++ {
		docs = append(docs, models.Question{ID: i})
		byURL[flatURL(i)] = http.StatusNotFound
	}

	store := newStubStore(docs...)
	prober := newStubProber(byURL)

	stats := sweep(t, store, prober, liveness.Config{FlatURLs: true, Workers: 4, Rate: 10000})

	require.Equal(t, int64(50), stats.Scanned)
	require.Equal(t, int64(50), stats.Dead)
	require.Equal(t, 50, prober.callCount())
}
