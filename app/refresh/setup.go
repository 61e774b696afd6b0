package refresh

import (
	"fmt"
	"log/slog"

	"github.com/lysyi3m/season-rank/app/bgm"
	"github.com/lysyi3m/season-rank/app/cfg"
	"github.com/lysyi3m/season-rank/app/season"
)

// Components is everything a refresh run needs, built from configuration.
type Components struct {
	Refresher *Refresher
	Store     *season.Store
	Lock      *RunLock
}

// Build wires the listing scraper, the catalog client and the document
// store from c. Both remote clients share one HTTP client.
func Build(c *cfg.Cfg) (*Components, error) {
	overrides, err := season.LoadOverrides(c.OverridesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	if c.Token == "" {
		slog.Warn("No API token configured, catalog requests are unauthenticated")
	}

	httpClient := bgm.NewHTTPClient()
	catalog := bgm.NewCatalog(httpClient, c.APIBaseURL, c.Token, c.UserAgent)
	lister := bgm.NewLister(httpClient, c.IndexURL, c.UserAgent)
	store := season.NewStore(c.DataDir)

	slog.Debug("Refresh components ready", "data_dir", c.DataDir, "index_url", c.IndexURL, "api_base_url", c.APIBaseURL)

	return &Components{
		Refresher: NewRefresher(lister, catalog, store, overrides),
		Store:     store,
		Lock:      NewRunLock(c.DataDir),
	}, nil
}
