//go:build smoke

package arcgis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/observability"
)

// These tests hit the live USGS WBD service.
// Run with: go test -tags=smoke ./internal/adapter/arcgis/ -v -count=1

func smokeClient() *Client {
	return NewClient(DefaultQueryURL, 30*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_FindContainingAndAdjacent(t *testing.T) {
	c := smokeClient()

	primary, err := c.FindContaining(context.Background(), 38.8977, -77.0365)
	require.NoError(t, err)
	assert.Equal(t, "02070010", primary.Code)
	assert.Contains(t, primary.States, "DC")

	neighbors, err := c.FindAdjacent(context.Background(), primary.Geometry, primary.Code)
	require.NoError(t, err)
	assert.NotEmpty(t, neighbors)
	for _, n := range neighbors {
		assert.NotEqual(t, primary.Code, n.Code)
	}
}

func TestSmoke_FindContaining_Ocean(t *testing.T) {
	c := smokeClient()

	_, err := c.FindContaining(context.Background(), 30.0, -40.0)
	require.Error(t, err)
	assert.Equal(t, domain.KindNoBoundaryFound, domain.KindOf(err))
}
