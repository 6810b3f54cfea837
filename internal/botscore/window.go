package botscore

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/time/rate"
)

// Window tracks recent request cadence per client. Entries live in a
// memory-bounded ristretto cache with a TTL, so idle clients age out
// without a sweeper goroutine.
type Window struct {
	cache *ristretto.Cache[string, *clientTrack]
	ttl   time.Duration
	limit rate.Limit
	burst int

	mu sync.Mutex // serializes get-or-create per call
}

type clientTrack struct {
	lim      *rate.Limiter
	mu       sync.Mutex
	lastPath string
	distinct int
}

// entries are tiny; cost 1 apiece and cap the count directly.
const windowMaxEntries = 100_000

// NewWindow builds a behavior window. perSecond and burst bound how fast
// a single client can go before Rapid starts reporting true; ttl decides
// how long an idle client's track survives.
func NewWindow(perSecond float64, burst int, ttl time.Duration) (*Window, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *clientTrack]{
		NumCounters: windowMaxEntries * 10,
		MaxCost:     windowMaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Window{
		cache: cache,
		ttl:   ttl,
		limit: rate.Limit(perSecond),
		burst: burst,
	}, nil
}

// Rapid records one request for clientID and reports whether the client
// is issuing sequential requests faster than a human plausibly would.
// The distinct-path requirement keeps a page plus its asset burst from
// tripping the signal.
func (w *Window) Rapid(clientID, path string) bool {
	t := w.track(clientID)

	t.mu.Lock()
	if path != t.lastPath {
		t.lastPath = path
		t.distinct++
	}
	distinct := t.distinct
	t.mu.Unlock()

	// Allow consumes a token; exhaustion means the cadence exceeded the
	// configured rate.
	exceeded := !t.lim.Allow()
	return exceeded && distinct > 1
}

// Close releases the cache's internal goroutines.
func (w *Window) Close() {
	w.cache.Close()
}

func (w *Window) track(clientID string) *clientTrack {
	if t, ok := w.cache.Get(clientID); ok {
		return t
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.cache.Get(clientID); ok {
		return t
	}
	t := &clientTrack{lim: rate.NewLimiter(w.limit, w.burst)}
	w.cache.SetWithTTL(clientID, t, 1, w.ttl)
	// ristretto admits asynchronously; wait so the next Get sees it
	w.cache.Wait()
	return t
}
