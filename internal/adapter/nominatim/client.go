package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/observability"
	"github.com/couchcryptid/watershed-finder/internal/ratelimit"
)

// DefaultSearchURL is the public OpenStreetMap Nominatim search endpoint.
const DefaultSearchURL = "https://nominatim.openstreetmap.org/search"

const provider = "nominatim"

// Client implements domain.Geocoder using the Nominatim search API.
type Client struct {
	searchURL  string
	userAgent  string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client. Every request waits on limiter first;
// share one limiter between all clients pointed at the same instance.
// A zero timeout leaves the transport default in place.
func NewClient(searchURL, userAgent string, timeout time.Duration, limiter *ratelimit.Limiter, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		searchURL:  searchURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

// Geocode resolves a US address or zip code to coordinates. The caller is
// responsible for rejecting empty queries.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	waited, err := c.limiter.Acquire(ctx)
	if err != nil {
		return domain.GeocodingResult{}, domain.WrapError(domain.KindGeocodeProvider, "Geocoding failed", err)
	}
	c.metrics.RateLimitWait.Observe(waited.Seconds())

	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"limit":          {"1"},
		"countrycodes":   {"us"},
		"addressdetails": {"1"},
	}

	start := time.Now()
	places, err := c.search(ctx, c.searchURL+"?"+params.Encode())
	c.metrics.ProviderDuration.WithLabelValues(provider, "geocode").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "geocode", "error").Inc()
		c.logger.Warn("geocode request failed", "query", query, "error", err)
		return domain.GeocodingResult{}, err
	}

	if len(places) == 0 {
		c.metrics.ProviderRequests.WithLabelValues(provider, "geocode", "empty").Inc()
		return domain.GeocodingResult{}, domain.NewError(domain.KindGeocodeNotFound, domain.MsgGeocodeNotFound, nil)
	}

	result, err := places[0].toResult()
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "geocode", "error").Inc()
		return domain.GeocodingResult{}, domain.WrapError(domain.KindGeocodeProvider, "Geocoding failed", err)
	}

	c.metrics.ProviderRequests.WithLabelValues(provider, "geocode", "success").Inc()
	c.logger.Debug("geocoded", "query", query, "lat", result.Lat, "lng", result.Lng, "waited", waited)
	return result, nil
}

func (c *Client) search(ctx context.Context, fullURL string) ([]place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, domain.WrapError(domain.KindGeocodeProvider, "Geocoding failed", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.KindGeocodeProvider, "Geocoding failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &domain.LookupError{
			Kind:    domain.KindGeocodeProvider,
			Message: fmt.Sprintf("Geocoding failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Status:  resp.StatusCode,
			Err:     &domain.StatusError{Provider: provider, Status: resp.StatusCode},
		}
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, domain.WrapError(domain.KindGeocodeProvider, "Geocoding failed", fmt.Errorf("decode response: %w", err))
	}
	return places, nil
}

// Nominatim API response types. Coordinates arrive as strings.

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p place) toResult() (domain.GeocodingResult, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	return domain.GeocodingResult{Lat: lat, Lng: lng, DisplayName: p.DisplayName}, nil
}
