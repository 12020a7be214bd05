package services

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pnodedash/config"
	"pnodedash/metrics"
	"pnodedash/models"
)

// CacheMode indicates which cache backend is active
type CacheMode string

const (
	CacheModeRedis    CacheMode = "redis"
	CacheModeInMemory CacheMode = "in-memory"
)

const (
	dashboardKey  = "dashboard"
	nodeKeyPrefix = "node:"
)

// ErrNoSnapshot is returned when no dashboard could be built and nothing,
// not even a stale copy, is cached.
var ErrNoSnapshot = errors.New("no snapshot available")

// CacheItem for in-memory storage
type CacheItem struct {
	Data      interface{}
	ExpiresAt time.Time
}

// CacheService owns the dashboard entry. Reads go through it: an expired or
// missing entry triggers a refresh, and a failed refresh falls back to the
// stale copy. Refreshes are numbered; a refresh that finishes after a newer
// one has been published is discarded.
type CacheService struct {
	cfg        *config.Config
	aggregator *DataAggregator
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// Redis
	redis       *redis.Client
	redisCtx    context.Context
	redisCancel context.CancelFunc
	mode        CacheMode
	modeMutex   sync.RWMutex

	// In-memory copy, kept past expiry so stale reads are possible
	inMemoryStore sync.Map

	now func() time.Time

	issued      atomic.Uint64
	publishMu   sync.Mutex
	published   uint64
	lastRefresh time.Time
	lastError   error

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewCacheService(cfg *config.Config, aggregator *DataAggregator, logger *zap.Logger, m *metrics.Metrics) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	cs := &CacheService{
		cfg:         cfg,
		aggregator:  aggregator,
		logger:      logger,
		metrics:     m,
		redisCtx:    ctx,
		redisCancel: cancel,
		mode:        CacheModeInMemory, // Start in memory mode
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}

	if cfg.Redis.Enabled {
		cs.connectRedis()
	} else {
		logger.Info("Redis disabled in config, using in-memory cache only")
	}

	return cs
}

// SetClock replaces the clock used for in-memory expiry.
func (cs *CacheService) SetClock(now func() time.Time) {
	cs.now = now
}

func (cs *CacheService) connectRedis() {
	if cs.cfg.Redis.Address == "" {
		cs.logger.Info("Redis address not configured, using in-memory cache")
		return
	}

	options := &redis.Options{
		Addr:         cs.cfg.Redis.Address,
		Password:     cs.cfg.Redis.Password,
		DB:           cs.cfg.Redis.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		PoolTimeout:  10 * time.Second,
	}

	if cs.cfg.Redis.UseTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cs.redis = redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := cs.redis.Ping(ctx).Err(); err != nil {
		cs.logger.Warn("Redis connection failed, running in in-memory mode",
			zap.String("address", cs.cfg.Redis.Address), zap.Error(err))
		cs.setMode(CacheModeInMemory)
		return
	}

	cs.logger.Info("Redis connected", zap.String("address", cs.cfg.Redis.Address))
	cs.setMode(CacheModeRedis)
}

func (cs *CacheService) setMode(mode CacheMode) {
	cs.modeMutex.Lock()
	defer cs.modeMutex.Unlock()
	cs.mode = mode
}

func (cs *CacheService) getMode() CacheMode {
	cs.modeMutex.RLock()
	defer cs.modeMutex.RUnlock()
	return cs.mode
}

// StartCacheWarmer warms the cache once and then keeps it fresh in the
// background until Stop is called.
func (cs *CacheService) StartCacheWarmer(ctx context.Context) {
	cs.logger.Info("Starting cache warmer",
		zap.Duration("interval", cs.cfg.RefreshIntervalDuration()),
		zap.String("mode", string(cs.getMode())))

	if _, err := cs.Refresh(ctx); err != nil {
		cs.logger.Warn("Initial cache warm failed", zap.Error(err))
	}

	go cs.runRefreshLoop()
	go cs.runHealthCheckLoop()
}

func (cs *CacheService) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.stopChan)
		cs.redisCancel()
		if cs.redis != nil {
			cs.redis.Close()
		}
	})
}

func (cs *CacheService) runRefreshLoop() {
	ticker := time.NewTicker(cs.cfg.RefreshIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := cs.Refresh(cs.redisCtx); err != nil {
				cs.logger.Warn("Cache refresh failed", zap.Error(err))
			}
		case <-cs.stopChan:
			return
		}
	}
}

func (cs *CacheService) runHealthCheckLoop() {
	interval := cs.cfg.HealthCheckIntervalDuration()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.checkRedisHealth()
		case <-cs.stopChan:
			return
		}
	}
}

// checkRedisHealth switches modes when Redis goes away or comes back.
func (cs *CacheService) checkRedisHealth() {
	if !cs.cfg.Redis.Enabled || cs.redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	err := cs.redis.Ping(ctx).Err()
	mode := cs.getMode()

	if mode == CacheModeRedis && err != nil {
		cs.logger.Warn("Redis health check failed, switching to in-memory mode", zap.Error(err))
		cs.setMode(CacheModeInMemory)
	} else if mode == CacheModeInMemory && err == nil {
		cs.logger.Info("Redis reconnected, switching back to redis mode")
		cs.syncInMemoryToRedis()
		cs.setMode(CacheModeRedis)
	}
}

func (cs *CacheService) syncInMemoryToRedis() {
	synced := 0
	cs.inMemoryStore.Range(func(key, value interface{}) bool {
		item := value.(*CacheItem)
		if ttl := item.ExpiresAt.Sub(cs.now()); ttl > 0 {
			if err := cs.setRedis(key.(string), item.Data, ttl); err == nil {
				synced++
			}
		}
		return true
	})
	cs.logger.Info("Synced in-memory cache to Redis", zap.Int("items", synced))
}

// Refresh builds a new dashboard and publishes it unless a newer refresh
// got there first, in which case the newer dashboard is returned.
func (cs *CacheService) Refresh(ctx context.Context) (*models.Dashboard, error) {
	gen := cs.issued.Add(1)

	d, err := cs.aggregator.Aggregate(ctx)
	if err != nil {
		cs.metrics.RecordRefresh("error")
		cs.publishMu.Lock()
		cs.lastError = err
		cs.publishMu.Unlock()
		return nil, err
	}
	d.Generation = gen

	if !cs.publish(d) {
		cs.metrics.RecordRefresh("superseded")
		cs.logger.Debug("Discarding superseded refresh", zap.Uint64("generation", gen))
		if current, _, ok := cs.cachedDashboard(); ok {
			return current, nil
		}
		return d, nil
	}

	cs.metrics.RecordRefresh("ok")
	return d, nil
}

func (cs *CacheService) publish(d *models.Dashboard) bool {
	cs.publishMu.Lock()
	defer cs.publishMu.Unlock()

	if d.Generation <= cs.published {
		return false
	}
	cs.published = d.Generation
	cs.lastRefresh = cs.now()
	cs.lastError = nil

	cs.Set(dashboardKey, d, cs.cfg.CacheTTLDuration())
	keep := make(map[string]struct{}, len(d.Nodes))
	for i := range d.Nodes {
		n := d.Nodes[i]
		key := nodeKeyPrefix + n.Pubkey
		keep[key] = struct{}{}
		cs.Set(key, &n, cs.cfg.NodeTTLDuration())
	}
	if pruned := cs.pruneNodeKeys(keep); pruned > 0 {
		cs.logger.Debug("Pruned departed nodes", zap.Int("count", pruned))
	}

	cs.logger.Info("Cache refreshed",
		zap.Uint64("generation", d.Generation),
		zap.Int("nodes", len(d.Nodes)),
		zap.Int("online", d.Stats.OnlineNodes),
		zap.String("mode", string(cs.getMode())))
	return true
}

func (cs *CacheService) cachedDashboard() (*models.Dashboard, bool, bool) {
	data, stale, found := cs.GetWithStale(dashboardKey)
	if !found {
		return nil, false, false
	}
	d, ok := data.(*models.Dashboard)
	if !ok {
		return nil, false, false
	}
	return d, stale, true
}

// GetDashboard returns the cached dashboard, refreshing it first when it
// is missing or expired. If the refresh fails and an expired copy exists,
// that copy is returned with stale set.
func (cs *CacheService) GetDashboard(ctx context.Context) (*models.Dashboard, bool, error) {
	cached, stale, found := cs.cachedDashboard()
	if found && !stale {
		return cached, false, nil
	}

	fresh, err := cs.Refresh(ctx)
	if err == nil {
		return fresh, false, nil
	}

	if found {
		cs.logger.Warn("Serving stale dashboard", zap.Uint64("generation", cached.Generation), zap.Error(err))
		return cached, true, nil
	}
	return nil, false, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
}

// GetNode looks a node up by pubkey in the per-node entries, then by pubkey
// or address in the dashboard.
func (cs *CacheService) GetNode(ctx context.Context, id string) (*models.Node, bool, error) {
	if data, stale, found := cs.GetWithStale(nodeKeyPrefix + id); found && !stale {
		if n, ok := data.(*models.Node); ok {
			return n, false, nil
		}
	}

	d, stale, err := cs.GetDashboard(ctx)
	if err != nil {
		return nil, false, err
	}
	n, ok := d.FindNode(id)
	if !ok {
		return nil, stale, nil
	}
	return n, stale, nil
}

// Set stores data in memory and, in redis mode, in Redis as well.
func (cs *CacheService) Set(key string, data interface{}, ttl time.Duration) {
	cs.setInMemory(key, data, ttl)

	if cs.getMode() == CacheModeRedis {
		if err := cs.setRedis(key, data, ttl); err != nil {
			cs.logger.Warn("Redis SET failed, keeping in-memory copy only",
				zap.String("key", key), zap.Error(err))
		}
	}
}

// Get retrieves unexpired data from the active cache backend
func (cs *CacheService) Get(key string) (interface{}, bool) {
	data, stale, found := cs.GetWithStale(key)
	if !found || stale {
		return nil, false
	}
	return data, true
}

// GetWithStale retrieves data and whether it has expired. Redis entries are
// never stale; Redis drops them on expiry and the in-memory copy answers.
func (cs *CacheService) GetWithStale(key string) (interface{}, bool, bool) {
	if cs.getMode() == CacheModeRedis {
		data, found, err := cs.getRedis(key)
		if err != nil {
			cs.logger.Debug("Redis GET failed, checking in-memory", zap.String("key", key), zap.Error(err))
		} else if found {
			return data, false, true
		}
	}
	return cs.getInMemoryWithStale(key)
}

func (cs *CacheService) setRedis(key string, data interface{}, ttl time.Duration) error {
	if cs.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}

	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return cs.redis.Set(ctx, key, jsonData, ttl).Err()
}

func (cs *CacheService) getRedis(key string) (interface{}, bool, error) {
	if cs.redis == nil {
		return nil, false, fmt.Errorf("redis client not initialized")
	}

	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	jsonData, err := cs.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Deserialize based on key pattern
	switch {
	case key == dashboardKey:
		var d models.Dashboard
		if err := json.Unmarshal(jsonData, &d); err != nil {
			return nil, false, err
		}
		return &d, true, nil
	case strings.HasPrefix(key, nodeKeyPrefix):
		var n models.Node
		if err := json.Unmarshal(jsonData, &n); err != nil {
			return nil, false, err
		}
		return &n, true, nil
	}

	var data interface{}
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (cs *CacheService) setInMemory(key string, data interface{}, ttl time.Duration) {
	cs.inMemoryStore.Store(key, &CacheItem{
		Data:      data,
		ExpiresAt: cs.now().Add(ttl),
	})
}

// pruneNodeKeys drops in-memory node entries not in keep. Redis copies
// expire on their own.
func (cs *CacheService) pruneNodeKeys(keep map[string]struct{}) int {
	pruned := 0
	cs.inMemoryStore.Range(func(k, _ interface{}) bool {
		key := k.(string)
		if !strings.HasPrefix(key, nodeKeyPrefix) {
			return true
		}
		if _, ok := keep[key]; !ok {
			cs.inMemoryStore.Delete(key)
			pruned++
		}
		return true
	})
	return pruned
}

func (cs *CacheService) getInMemoryWithStale(key string) (interface{}, bool, bool) {
	val, ok := cs.inMemoryStore.Load(key)
	if !ok {
		return nil, false, false
	}

	item := val.(*CacheItem)
	isStale := !cs.now().Before(item.ExpiresAt)
	return item.Data, isStale, true
}

func (cs *CacheService) GetCacheMode() CacheMode {
	return cs.getMode()
}

// ClearCache drops every entry. The generation counter is kept so a
// refresh already in flight cannot publish an older dashboard afterwards.
func (cs *CacheService) ClearCache(ctx context.Context) error {
	if cs.getMode() == CacheModeRedis && cs.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		iter := cs.redis.Scan(ctx, 0, nodeKeyPrefix+"*", 0).Iterator()
		deleted := 0
		for iter.Next(ctx) {
			cs.redis.Del(ctx, iter.Val())
			deleted++
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan redis keys: %w", err)
		}
		if err := cs.redis.Del(ctx, dashboardKey).Err(); err != nil {
			return fmt.Errorf("delete dashboard key: %w", err)
		}
		cs.logger.Info("Redis cache cleared", zap.Int("node_keys", deleted))
	}

	cs.inMemoryStore.Range(func(key, _ interface{}) bool {
		cs.inMemoryStore.Delete(key)
		return true
	})
	cs.logger.Info("In-memory cache cleared")
	return nil
}

func (cs *CacheService) GetCacheStats(ctx context.Context) map[string]interface{} {
	cs.publishMu.Lock()
	stats := map[string]interface{}{
		"mode":       string(cs.getMode()),
		"enabled":    cs.cfg.Redis.Enabled,
		"generation": cs.published,
		"ttl":        cs.cfg.CacheTTLDuration().String(),
	}
	if !cs.lastRefresh.IsZero() {
		stats["last_refresh"] = cs.lastRefresh
	}
	if cs.lastError != nil {
		stats["last_error"] = cs.lastError.Error()
	}
	cs.publishMu.Unlock()

	if cs.getMode() == CacheModeRedis && cs.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if dbSize, err := cs.redis.DBSize(ctx).Result(); err == nil {
			stats["redis_keys"] = dbSize
		}
	}

	inMemCount := 0
	cs.inMemoryStore.Range(func(_, _ interface{}) bool {
		inMemCount++
		return true
	})
	stats["in_memory_keys"] = inMemCount

	if _, stale, found := cs.cachedDashboard(); found {
		stats["stale"] = stale
	}

	return stats
}
