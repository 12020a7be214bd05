package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pnodedash/models"
)

const defaultGeoAPIURL = "http://ip-api.com/json/"

// GeoCache is a TTL cache of successful lookups keyed by IP.
type GeoCache struct {
	mu      sync.RWMutex
	entries map[string]geoEntry
	ttl     time.Duration
	now     func() time.Time
}

type geoEntry struct {
	loc       models.GeoLocation
	expiresAt time.Time
}

// NewGeoCache creates a cache; now defaults to time.Now.
func NewGeoCache(ttl time.Duration, now func() time.Time) *GeoCache {
	if now == nil {
		now = time.Now
	}
	return &GeoCache{
		entries: make(map[string]geoEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *GeoCache) Get(ip string) (*models.GeoLocation, bool) {
	c.mu.RLock()
	e, ok := c.entries[ip]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	loc := e.loc
	return &loc, true
}

func (c *GeoCache) Set(ip string, loc models.GeoLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = geoEntry{loc: loc, expiresAt: c.now().Add(c.ttl)}
}

// Len returns the number of entries, expired ones included.
func (c *GeoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GeoResolverConfig configures a GeoResolver.
type GeoResolverConfig struct {
	DBPath        string
	APIURL        string // lookups are APIURL + ip
	Timeout       time.Duration
	RatePerMinute int
	CacheTTL      time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

type GeoResolver struct {
	db         *geoip2.Reader
	httpClient *http.Client
	apiURL     string
	limiter    *rate.Limiter
	cache      *GeoCache
	timeout    time.Duration
	logger     *zap.Logger
}

// NewGeoResolver creates a new GeoResolver. It never fails: if the database
// can't be loaded, it falls back to API-only mode.
func NewGeoResolver(cfg GeoResolverConfig) *GeoResolver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *geoip2.Reader
	if cfg.DBPath != "" {
		var err error
		db, err = geoip2.Open(cfg.DBPath)
		if err != nil {
			logger.Warn("Could not open GeoIP database, using API fallback only",
				zap.String("path", cfg.DBPath), zap.Error(err))
			db = nil
		}
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultGeoAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	// ip-api.com allows 45 requests per minute on the free tier
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 45
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)

	return &GeoResolver{
		db:         db,
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		limiter:    limiter,
		cache:      NewGeoCache(ttl, cfg.Clock),
		timeout:    timeout,
		logger:     logger,
	}
}

func (g *GeoResolver) Close() {
	if g != nil && g.db != nil {
		g.db.Close()
	}
}

// Cache exposes the lookup cache.
func (g *GeoResolver) Cache() *GeoCache {
	return g.cache
}

// HostFromAddress extracts the IP part of "ip", "ip:port" or "[ipv6]:port".
func HostFromAddress(address string) string {
	address = strings.TrimSpace(address)
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return strings.Trim(address, "[]")
}

// Lookup resolves an IP-bearing address. It is safe to call on a nil
// resolver. Failures are reported as (nil, false), never as errors.
func (g *GeoResolver) Lookup(ctx context.Context, address string) (*models.GeoLocation, bool) {
	if g == nil {
		return nil, false
	}

	host := HostFromAddress(address)
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, false
	}
	key := ip.String()

	// 1. Check Cache
	if loc, ok := g.cache.Get(key); ok {
		return loc, true
	}

	// 2. Try DB (if available)
	if loc, ok := g.lookupDB(ip); ok {
		g.cache.Set(key, *loc)
		return loc, true
	}

	// Public lookup services know nothing about these
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return nil, false
	}

	// 3. Try API Fallback
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	loc, err := g.fetchFromAPI(ctx, key)
	if err != nil {
		g.logger.Debug("geolocation lookup failed", zap.String("ip", key), zap.Error(err))
		return nil, false
	}

	g.cache.Set(key, *loc)
	return loc, true
}

func (g *GeoResolver) lookupDB(ip net.IP) (*models.GeoLocation, bool) {
	if g.db == nil {
		return nil, false
	}
	record, err := g.db.City(ip)
	if err != nil {
		return nil, false
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, false
	}

	loc := &models.GeoLocation{
		Lat:     record.Location.Latitude,
		Lng:     record.Location.Longitude,
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc, true
}

type ipApiResponse struct {
	Status     string  `json:"status"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

func (g *GeoResolver) fetchFromAPI(ctx context.Context, ip string) (*models.GeoLocation, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	url := g.apiURL + ip + "?fields=status,country,regionName,city,lat,lon"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error: %d", resp.StatusCode)
	}

	var apiResp ipApiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, err
	}

	if apiResp.Status != "success" {
		return nil, fmt.Errorf("api returned %q status", apiResp.Status)
	}

	return &models.GeoLocation{
		Lat:     apiResp.Lat,
		Lng:     apiResp.Lon,
		Country: apiResp.Country,
		Region:  apiResp.RegionName,
		City:    apiResp.City,
	}, nil
}
