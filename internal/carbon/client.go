// Package carbon decides whether "now" is a low-carbon-intensity window for a
// cloud region, so delay-tolerant work can be deferred into greener hours.
//
// A live grid-intensity provider is consulted when configured, with a short
// per-region cache; every failure mode (unconfigured provider, unknown
// region, transport error, malformed response) degrades to a static
// time-of-day heuristic and never propagates an error to callers.
package carbon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"valdrix/internal/config"
)

// authTokenHeader is the bearer-style header the intensity provider expects.
const authTokenHeader = "auth-token"

// intensityResponse is the subset of the provider's latest-intensity payload
// the client reads. A missing or null carbonIntensity field counts as no data.
type intensityResponse struct {
	CarbonIntensity *float64 `json:"carbonIntensity"`
}

// IntensityClient performs live carbon-intensity lookups against the
// provider's HTTP API. Calls are bounded by the configured timeout and
// wrapped in a circuit breaker so a degraded provider cannot slow every
// dispatch cycle down to the timeout.
type IntensityClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewIntensityClient creates a live intensity client from the carbon
// configuration.
func NewIntensityClient(cfg config.CarbonConfig, logger *slog.Logger) *IntensityClient {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "carbon-intensity",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &IntensityClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    cb,
		baseURL:    cfg.BaseURL,
		token:      cfg.APIToken,
		logger:     logger,
	}
}

// FetchIntensity performs one bounded-timeout lookup for the given provider
// zone. The second return value is false whenever no live value is available:
// transport error, non-2xx status, open breaker, or a missing intensity
// field. No failure mode is an error from the caller's perspective.
func (c *IntensityClient) FetchIntensity(ctx context.Context, zone string) (float64, bool) {
	reqURL := c.baseURL + "/carbon-intensity/latest?zone=" + url.QueryEscape(zone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to build carbon intensity request",
			"zone", zone,
			"error", err,
		)
		return 0, false
	}
	req.Header.Set(authTokenHeader, c.token)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			r.Body.Close()
			return nil, &statusError{code: r.StatusCode}
		}
		return r, nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "carbon intensity lookup failed",
			"zone", zone,
			"error", err,
		)
		return 0, false
	}
	defer resp.Body.Close()

	var payload intensityResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.WarnContext(ctx, "failed to decode carbon intensity response",
			"zone", zone,
			"error", err,
		)
		return 0, false
	}

	if payload.CarbonIntensity == nil {
		return 0, false
	}

	return *payload.CarbonIntensity, true
}

// statusError carries a non-2xx status through the circuit breaker so those
// responses count as failures.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
