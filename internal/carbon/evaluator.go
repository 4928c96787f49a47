package carbon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// regionZones maps cloud regions to the intensity provider's zone
// identifiers. Regions absent from this table short-circuit to "no data"
// without a network call.
var regionZones = map[string]string{
	"us-east-1":      "US-MIDA-PJM",
	"us-east-2":      "US-MIDW-MISO",
	"us-west-1":      "US-CAL-CISO",
	"us-west-2":      "US-NW-PACW",
	"eu-west-1":      "IE",
	"eu-west-2":      "GB",
	"eu-central-1":   "DE",
	"eu-north-1":     "SE",
	"ap-southeast-1": "SG",
	"ap-southeast-2": "AU-NSW",
	"ap-northeast-1": "JP-TK",
	"ap-south-1":     "IN-WE",
	"ca-central-1":   "CA-ON",
	"sa-east-1":      "BR-CS",
}

// IntensityFetcher is the live-lookup dependency of the evaluator, satisfied
// by *IntensityClient in production and by deterministic fakes in tests.
type IntensityFetcher interface {
	FetchIntensity(ctx context.Context, zone string) (float64, bool)
}

// cachedSample is one per-region cache entry. Entries live in process memory
// only; staleness across processes is acceptable because grid intensity
// changes slowly relative to the cache TTL, and a restart simply falls back
// to the heuristic until the cache warms.
type cachedSample struct {
	value     float64
	fetchedAt time.Time
}

// Evaluator reports whether a region is currently in a green window. It is
// safe for concurrent use.
type Evaluator struct {
	fetcher   IntensityFetcher // nil when live lookups are not configured
	threshold float64
	cacheTTL  time.Duration
	logger    *slog.Logger

	nowFn func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSample
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc(fn func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		e.nowFn = fn
	}
}

// NewEvaluator creates an Evaluator. The fetcher may be nil when no live
// provider is configured; evaluation then runs on the time-of-day heuristic
// alone.
func NewEvaluator(fetcher IntensityFetcher, threshold float64, cacheTTL time.Duration, logger *slog.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{
		fetcher:   fetcher,
		threshold: threshold,
		cacheTTL:  cacheTTL,
		logger:    logger,
		nowFn:     func() time.Time { return time.Now().UTC() },
		cache:     make(map[string]cachedSample),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsLowCarbonWindow reports whether the region is currently green. A live
// intensity value, when available, is compared against the configured
// threshold; otherwise the static UTC-hour heuristic decides. This method
// never returns an error.
func (e *Evaluator) IsLowCarbonWindow(ctx context.Context, region string) bool {
	if intensity, ok := e.fetchLiveIntensity(ctx, region); ok {
		return intensity <= e.threshold
	}
	return greenByHour(e.nowFn().Hour())
}

// fetchLiveIntensity returns the cached or freshly fetched intensity for the
// region. The second return value is false when no live value is available.
// Failed lookups are not cached, so the next call retries the provider.
func (e *Evaluator) fetchLiveIntensity(ctx context.Context, region string) (float64, bool) {
	if e.fetcher == nil {
		return 0, false
	}

	zone, ok := regionZones[region]
	if !ok {
		return 0, false
	}

	now := e.nowFn()

	e.mu.Lock()
	if sample, ok := e.cache[region]; ok && now.Sub(sample.fetchedAt) < e.cacheTTL {
		e.mu.Unlock()
		return sample.value, true
	}
	e.mu.Unlock()

	value, ok := e.fetcher.FetchIntensity(ctx, zone)
	if !ok {
		return 0, false
	}

	e.mu.Lock()
	e.cache[region] = cachedSample{value: value, fetchedAt: now}
	e.mu.Unlock()

	return value, true
}

// greenByHour is the static fallback heuristic: hours 10-16 UTC (solar peak)
// and 0-5 UTC (low demand) count as green.
func greenByHour(hour int) bool {
	if hour >= 10 && hour <= 16 {
		return true
	}
	return hour >= 0 && hour <= 5
}
