package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/observability"
)

// DefaultQueryURL is the USGS WBD HUC8 layer query endpoint.
const DefaultQueryURL = "https://hydro.nationalmap.gov/arcgis/rest/services/wbd/MapServer/4/query"

const provider = "arcgis"

var (
	pointFields    = []string{domain.PropCode, domain.PropName, domain.PropStates, domain.PropAreaAcres, domain.PropAreaSqKm}
	adjacentFields = []string{domain.PropCode, domain.PropName, domain.PropStates}
)

// Client implements domain.BoundaryLocator and domain.AdjacencyResolver
// against an ArcGIS MapServer layer query endpoint.
type Client struct {
	queryURL   string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an ArcGIS query client. A zero timeout leaves the
// transport default in place.
func NewClient(queryURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		queryURL:   queryURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// FindContaining returns the HUC8 that contains the point.
func (c *Client) FindContaining(ctx context.Context, lat, lng float64) (domain.BoundaryFeature, error) {
	geom, err := json.Marshal(esriPoint{X: lng, Y: lat})
	if err != nil {
		return domain.BoundaryFeature{}, domain.WrapError(domain.KindBoundaryLookup, "Failed to find HUC8 boundary", err)
	}

	form := baseForm(pointFields)
	form.Set("geometry", string(geom))
	form.Set("geometryType", "esriGeometryPoint")

	features, err := c.query(ctx, "point", form)
	if err != nil {
		c.logger.Warn("boundary lookup failed", "lat", lat, "lng", lng, "error", err)
		return domain.BoundaryFeature{}, domain.WrapError(domain.KindBoundaryLookup, "Failed to find HUC8 boundary", err)
	}
	if len(features) == 0 {
		return domain.BoundaryFeature{}, domain.NewError(domain.KindNoBoundaryFound, domain.MsgNoBoundaryFound, nil)
	}

	c.logger.Debug("boundary found", "huc8", features[0].Code, "lat", lat, "lng", lng)
	return features[0], nil
}

// FindAdjacent returns the HUC8s intersecting geometry, minus the feature
// identified by code.
func (c *Client) FindAdjacent(ctx context.Context, geometry orb.Geometry, code string) ([]domain.BoundaryFeature, error) {
	poly, err := toEsriPolygon(geometry)
	if err != nil {
		return nil, domain.WrapError(domain.KindAdjacencyLookup, "Failed to find adjacent HUC8s", err)
	}
	geom, err := json.Marshal(poly)
	if err != nil {
		return nil, domain.WrapError(domain.KindAdjacencyLookup, "Failed to find adjacent HUC8s", err)
	}

	form := baseForm(adjacentFields)
	form.Set("geometry", string(geom))
	form.Set("geometryType", "esriGeometryPolygon")

	features, err := c.query(ctx, "adjacent", form)
	if err != nil {
		c.logger.Warn("adjacency lookup failed", "huc8", code, "error", err)
		return nil, domain.WrapError(domain.KindAdjacencyLookup, "Failed to find adjacent HUC8s", err)
	}

	neighbors := domain.ExcludeCode(features, code)
	c.logger.Debug("adjacent found", "huc8", code, "count", len(neighbors))
	return neighbors, nil
}

func baseForm(fields []string) url.Values {
	return url.Values{
		"inSR":           {strconv.Itoa(wkidWGS84)},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"outFields":      {strings.Join(fields, ",")},
		"returnGeometry": {"true"},
		"outSR":          {strconv.Itoa(wkidWGS84)},
		"f":              {"geojson"},
	}
}

func (c *Client) query(ctx context.Context, method string, form url.Values) ([]domain.BoundaryFeature, error) {
	start := time.Now()
	features, err := c.doRequest(ctx, form)
	c.metrics.ProviderDuration.WithLabelValues(provider, method).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.ProviderRequests.WithLabelValues(provider, method, "error").Inc()
	case len(features) == 0:
		c.metrics.ProviderRequests.WithLabelValues(provider, method, "empty").Inc()
	default:
		c.metrics.ProviderRequests.WithLabelValues(provider, method, "success").Inc()
	}
	return features, err
}

func (c *Client) doRequest(ctx context.Context, form url.Values) ([]domain.BoundaryFeature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The body is usually an HTML error page; keep it out of the user message.
		c.logger.Warn("arcgis error response", "status", resp.StatusCode, "body", truncate(body, 200))
		return nil, &domain.StatusError{Provider: provider, Status: resp.StatusCode}
	}

	return decodeFeatures(body)
}

// ArcGIS API response types.

// envelope covers both a GeoJSON FeatureCollection and the ESRI error
// object, which ArcGIS Server returns with HTTP 200.
type envelope struct {
	Error    *esriError      `json:"error"`
	Features json.RawMessage `json:"features"`
}

type esriError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *esriError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
}

func decodeFeatures(body []byte) ([]domain.BoundaryFeature, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	// An absent or null features member is an empty result.
	if len(env.Features) == 0 || bytes.Equal(env.Features, []byte("null")) {
		return []domain.BoundaryFeature{}, nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	features := make([]domain.BoundaryFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		bf, err := domain.FeatureFromGeoJSON(f)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		features = append(features, bf)
	}
	return features, nil
}

// truncate cuts b to at most n bytes on a rune boundary.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "..."
}
