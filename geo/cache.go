// Package geo resolves session country codes to coordinates through a layered cache:
// an in-memory LRU, the country CSV file shared between runs, then the geocoding service.
package geo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"afdata/core"
	"afdata/metrics"
	"afdata/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var cacheHeader = []string{"country_code", "latitude", "longitude"}

// Error log flags
const (
	flagNoLocation   = "0"
	flagServiceError = "1"
)

// CacheConfig configures the lookup layers
type CacheConfig struct {
	// CachePath is the country_code,latitude,longitude file
	CachePath string
	// ErrorLogPath receives one row per failed lookup
	ErrorLogPath string
	// Size bounds the in-memory layer
	Size    int
	Breaker BreakerConfig
}

// Cache implements country lookups for session enrichment
type Cache struct {
	config   CacheConfig
	geocoder Geocoder
	breaker  *Breaker
	memory   *lru.Cache[string, Point]
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu sync.Mutex
}

// OpenCache prepares the cache, creating the CSV file with its header when absent.
// geocoder may be nil, in which case uncached countries resolve to 0,0.
func OpenCache(config CacheConfig, geocoder Geocoder, logger *zap.SugaredLogger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if config.Size <= 0 {
		config.Size = 512
	}
	memory, err := lru.New[string, Point](config.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create geo cache: %w", err)
	}

	if err := util.EnsureDir(filepath.Dir(config.CachePath)); err != nil {
		return nil, err
	}
	if _, err := os.Stat(config.CachePath); errors.Is(err, os.ErrNotExist) {
		if err := appendRow(config.CachePath, cacheHeader); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat geo cache: %w", err)
	}

	return &Cache{
		config:   config,
		geocoder: geocoder,
		breaker:  NewBreaker(config.Breaker),
		memory:   memory,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Lookup returns the coordinates of a country. Failures resolve to 0,0 and are written
// to the error log; countries the service has no location for are cached as 0,0.
func (c *Cache) Lookup(ctx context.Context, countryCode string) (lat, lon float64) {
	code := strings.TrimSpace(countryCode)
	if code == "" {
		return 0, 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.memory.Get(code); ok {
		metrics.GeocodeLookups.WithLabelValues("memory").Inc()
		return p.Lat, p.Lon
	}

	p, ok, err := c.readFile(code)
	if err != nil {
		c.logger.Warnw("Failed to read geo cache", "error", err)
	}
	if ok {
		metrics.GeocodeLookups.WithLabelValues("file").Inc()
		c.memory.Add(code, p)
		return p.Lat, p.Lon
	}

	if c.geocoder == nil {
		metrics.GeocodeLookups.WithLabelValues("disabled").Inc()
		return 0, 0
	}
	if err := c.breaker.Allow(); err != nil {
		metrics.GeocodeLookups.WithLabelValues("breaker_open").Inc()
		c.logError(code, flagServiceError)
		return 0, 0
	}

	p, err = c.geocoder.Geocode(ctx, code)
	switch {
	case err == nil:
		c.breaker.Success()
		metrics.GeocodeLookups.WithLabelValues("service").Inc()
		c.store(code, p)
		return p.Lat, p.Lon
	case errors.Is(err, ErrNoLocation):
		c.breaker.Success()
		metrics.GeocodeLookups.WithLabelValues("no_location").Inc()
		c.logger.Warnw("Geocoder has no location for country, caching 0,0", "country", code)
		c.logError(code, flagNoLocation)
		c.store(code, Point{})
		return 0, 0
	default:
		c.breaker.Failure()
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		c.logger.Warnw("Geocode lookup failed", "country", code, "error", util.SanitizeError(err), "breaker", c.breaker.State())
		c.logError(code, flagServiceError)
		return 0, 0
	}
}

func (c *Cache) store(code string, p Point) {
	c.memory.Add(code, p)
	row := []string{code, formatCoord(p.Lat), formatCoord(p.Lon)}
	if err := appendRow(c.config.CachePath, row); err != nil {
		c.logger.Warnw("Failed to append to geo cache", "country", code, "error", err)
	}
}

func (c *Cache) logError(code, flag string) {
	if c.config.ErrorLogPath == "" {
		return
	}
	row := []string{c.now().Format(core.QueryTimeLayout), code, flag, flag}
	if err := appendRow(c.config.ErrorLogPath, row); err != nil {
		c.logger.Warnw("Failed to write geocoding error log", "error", err)
	}
}

func (c *Cache) readFile(code string) (Point, bool, error) {
	f, err := os.Open(c.config.CachePath)
	if err != nil {
		return Point{}, false, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			return Point{}, false, nil
		}
		if err != nil {
			return Point{}, false, err
		}
		if len(row) < 3 || row[0] != code {
			continue
		}
		lat, err1 := strconv.ParseFloat(row[1], 64)
		lon, err2 := strconv.ParseFloat(row[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		return Point{Lat: lat, Lon: lon}, true, nil
	}
}

func appendRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
