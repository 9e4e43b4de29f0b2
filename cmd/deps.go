package cmd

import (
	"errors"
	"fmt"

	"afdata/autofocus"
	"afdata/bootstrap"
	"afdata/config"
	"afdata/core"
	"afdata/enrich"
	"afdata/geo"
	"afdata/search"
	"afdata/sink"
	"afdata/storage"
	"afdata/taxonomy"
)

// resolveKeys merges the flag keys with the configured secret provider
func (a *app) resolveKeys() (config.Keys, error) {
	manager, err := config.NewSecretManager(a.cfg)
	if err != nil {
		return config.Keys{}, err
	}
	return config.ResolveKeys(manager, config.Keys{AutoFocus: a.opts.apiKey, Geocode: a.opts.geoKey})
}

func (a *app) newClient(keys config.Keys) (*autofocus.Client, error) {
	return autofocus.NewClient(autofocus.Config{
		BaseURL:           a.baseURL,
		Hostname:          a.cfg.API.Hostname,
		APIKey:            keys.AutoFocus,
		Timeout:           a.cfg.API.Timeout,
		RequestsPerSecond: a.cfg.API.RequestsPerSecond,
		Burst:             a.cfg.API.Burst,
	}, a.sugar)
}

func (a *app) newPoller(kind core.RunKind) *search.Poller {
	s := a.cfg.Search
	policy := search.DefaultRetryPolicy()
	policy.MaxRetries = s.Retry.MaxAttempts
	if s.Retry.InitialBackoff > 0 {
		policy.InitialInterval = s.Retry.InitialBackoff
	}
	if s.Retry.MaxBackoff > 0 {
		policy.MaxInterval = s.Retry.MaxBackoff
	}

	cfg := search.PollerConfig{
		Interval:       s.PollInterval,
		StallThreshold: s.StallThreshold,
		MaxPolls:       s.MaxPolls,
		Retry:          policy,
	}
	return search.NewPoller(cfg.For(kind), a.sugar)
}

func (a *app) layout() sink.Layout {
	return sink.Layout{BulkDir: a.cfg.Output.BulkDir, PrettyDir: a.cfg.Output.PrettyDir}
}

func (a *app) index(kind core.RunKind) string {
	if kind == core.KindSessions {
		return a.cfg.Output.SessionIndex
	}
	return a.cfg.Output.HashIndex
}

func (a *app) taxonomyPaths() taxonomy.Paths {
	return taxonomy.Paths{
		TagData:   a.cfg.DataPaths.TagData,
		GroupList: a.cfg.DataPaths.GroupList,
		NoGroup:   a.cfg.DataPaths.NoGroup,
	}
}

func (a *app) prepareDirs() error {
	return bootstrap.EnsureDataDirectories(bootstrap.DataDirectoriesFromConfig(a.cfg), a.sugar)
}

func (a *app) openLedger() (*storage.Ledger, error) {
	ledger, err := storage.OpenLedger(a.cfg.DataPaths.Ledger, a.sugar)
	if err != nil {
		return nil, errors.New(bootstrap.ClassifySQLiteError(err, a.cfg.DataPaths.Ledger))
	}
	return ledger, nil
}

// loadTaxonomy returns nil when no tag data has been cached yet; every tag lookup then
// misses and records keep their raw tags only.
func (a *app) loadTaxonomy() (*taxonomy.Taxonomy, error) {
	tax, err := taxonomy.Load(a.cfg.DataPaths.TagData)
	if errors.Is(err, core.ErrMissingArtifact) {
		a.printf(warningColor, "Warning: %v\n", err)
		a.sugar.Warnw("Tag data missing, continuing without tag classification", "path", a.cfg.DataPaths.TagData)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.sugar.Debugw("Loaded tag data", "tags", tax.Len())
	return tax, nil
}

// loadExploits returns nil when exploit enrichment is off or the exploit file is missing
func (a *app) loadExploits() (*enrich.ExploitTable, error) {
	if !a.cfg.Enrich.Exploits {
		return nil, nil
	}
	table, err := enrich.LoadExploits(a.cfg.DataPaths.ExploitsFile)
	if errors.Is(err, core.ErrMissingArtifact) {
		a.printf(warningColor, "Warning: %v, exploit data disabled\n", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.sugar.Debugw("Loaded exploit signatures", "count", table.Len())
	return table, nil
}

// openGeoCache prepares the country lookup used by session enrichment. Without a
// geocoding key only cached countries resolve.
func (a *app) openGeoCache(keys config.Keys) (*geo.Cache, error) {
	var geocoder geo.Geocoder
	if keys.Geocode != "" {
		g, err := geo.NewGoogleGeocoder(a.cfg.Geo.URL, keys.Geocode, a.cfg.Geo.Timeout)
		if err != nil {
			return nil, err
		}
		geocoder = g
	} else {
		a.sugar.Infow("No geocoding key, uncached countries resolve to 0,0")
	}

	breaker := geo.DefaultBreakerConfig()
	if a.cfg.Geo.BreakerFailures > 0 {
		breaker.Failures = a.cfg.Geo.BreakerFailures
	}
	if a.cfg.Geo.BreakerCooldown > 0 {
		breaker.Cooldown = a.cfg.Geo.BreakerCooldown
	}

	cache, err := geo.OpenCache(geo.CacheConfig{
		CachePath:    a.cfg.DataPaths.GeoCache,
		ErrorLogPath: a.cfg.DataPaths.GeoErrors,
		Size:         a.cfg.Geo.CacheSize,
		Breaker:      breaker,
	}, geocoder, a.sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo cache: %w", err)
	}
	return cache, nil
}
