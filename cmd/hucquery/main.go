// Command hucquery looks up the HUC8 watershed for an address and lists
// the watersheds that border it.
//
// Usage:
//
//	go run ./cmd/hucquery -q "1600 Pennsylvania Avenue, Washington DC"
//	go run ./cmd/hucquery -q "Harpers Ferry, WV" -select 02070007 -json
//
// Provider endpoints and the geocoding interval come from the same
// environment variables as the service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/watershed-finder/internal/adapter/arcgis"
	"github.com/couchcryptid/watershed-finder/internal/adapter/nominatim"
	"github.com/couchcryptid/watershed-finder/internal/config"
	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/observability"
	"github.com/couchcryptid/watershed-finder/internal/pipeline"
	"github.com/couchcryptid/watershed-finder/internal/ratelimit"
	"github.com/couchcryptid/watershed-finder/internal/render"
)

func main() {
	query := flag.String("q", "", "address, place name, or zip code to look up")
	selectCode := flag.String("select", "", "after the search, reselect this neighboring HUC8 code")
	asJSON := flag.Bool("json", false, "print the final map as a GeoJSON FeatureCollection")
	verbose := flag.Bool("v", false, "log provider calls and status changes to stderr")
	timeout := flag.Duration("timeout", 60*time.Second, "overall deadline")
	flag.Parse()

	if *query == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	os.Exit(run(ctx, cfg, *query, *selectCode, *asJSON, *verbose))
}

func run(ctx context.Context, cfg *config.Config, query, selectCode string, asJSON, verbose bool) int {
	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := observability.NewMetricsForTesting()

	limiter := ratelimit.New(cfg.GeocodeMinInterval, nil)
	boundaries := arcgis.NewClient(cfg.ArcGISQueryURL, cfg.ProviderTimeout, metrics, logger)
	providers := pipeline.Providers{
		Geocoder:  nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.ProviderTimeout, limiter, metrics, logger),
		Boundary:  boundaries,
		Adjacency: boundaries,
	}

	scene := render.NewScene()
	var listener pipeline.StatusListener
	if verbose {
		listener = pipeline.StatusFunc(func(s pipeline.Status) {
			fmt.Fprintf(os.Stderr, "status: %s busy=%t %s\n", s.State, s.Busy, s.Message)
		})
	}
	orch := pipeline.New(providers, scene, listener, logger, metrics)
	defer orch.Close()

	if err := orch.Search(ctx, query); err != nil {
		fmt.Fprintln(os.Stderr, domain.UserMessage(err, domain.MsgSearchFailed))
		return 1
	}

	if selectCode != "" {
		f, ok := neighbor(orch.Selection(), selectCode)
		if !ok {
			fmt.Fprintf(os.Stderr, "HUC8 %s does not border the search result\n", selectCode)
			return 1
		}
		if err := orch.SelectNeighbor(ctx, f); err != nil {
			fmt.Fprintln(os.Stderr, domain.UserMessage(err, domain.MsgSelectFailed))
			return 1
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(scene.FeatureCollection()); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			return 1
		}
		return 0
	}

	printSelection(orch.Selection())
	return 0
}

func neighbor(sel *domain.Selection, code string) (domain.BoundaryFeature, bool) {
	if sel == nil {
		return domain.BoundaryFeature{}, false
	}
	for _, n := range sel.Neighbors {
		if n.Code == code {
			return n, true
		}
	}
	return domain.BoundaryFeature{}, false
}

func printSelection(sel *domain.Selection) {
	if sel == nil {
		return
	}
	if sel.Location != nil {
		fmt.Printf("Location:  %s (%.5f, %.5f)\n", sel.Location.DisplayName, sel.Location.Lat, sel.Location.Lng)
	}
	fmt.Printf("Watershed: %s  %s  [%s]%s\n", sel.Primary.Code, sel.Primary.Name, sel.Primary.States, area(sel.Primary))
	fmt.Println()
	fmt.Printf("Neighbors (%d):\n", len(sel.Neighbors))
	for _, n := range sel.Neighbors {
		fmt.Printf("  %s  %-40s [%s]%s\n", n.Code, n.Name, n.States, area(n))
	}
}

func area(f domain.BoundaryFeature) string {
	if f.AreaSqKm == nil {
		return ""
	}
	return fmt.Sprintf("  %.0f km²", *f.AreaSqKm)
}
