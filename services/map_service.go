package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pnodedash/metrics"
	"pnodedash/models"
)

// Geolocator resolves an IP-bearing address. A failed lookup returns
// (nil, false).
type Geolocator interface {
	Lookup(ctx context.Context, address string) (*models.GeoLocation, bool)
}

// MapService projects nodes onto the map.
type MapService struct {
	geo         Geolocator
	concurrency int
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewMapService(geo Geolocator, concurrency int, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *MapService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapService{
		geo:         geo,
		concurrency: concurrency,
		timeout:     timeout,
		metrics:     m,
		logger:      logger,
	}
}

// LocateNodes geolocates every node with at most s.concurrency lookups in
// flight. Nodes whose lookup fails are left out; the rest keep their input
// order.
func (s *MapService) LocateNodes(ctx context.Context, nodes []models.Node) []models.MapNode {
	located := make([]*models.MapNode, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range nodes {
		i := i
		g.Go(func() error {
			n := &nodes[i]
			addr := n.IP
			if addr == "" {
				addr = n.Address
			}
			if addr == "" {
				return nil
			}

			callCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			loc, ok := s.geo.Lookup(callCtx, addr)
			s.metrics.RecordGeoLookup(ok)
			if !ok {
				return nil
			}
			located[i] = toMapNode(n, loc)
			return nil
		})
	}
	// lookups never return errors
	_ = g.Wait()

	out := make([]models.MapNode, 0, len(nodes))
	for _, m := range located {
		if m != nil {
			out = append(out, *m)
		}
	}

	s.logger.Debug("Located nodes", zap.Int("requested", len(nodes)), zap.Int("located", len(out)))
	return out
}

func toMapNode(n *models.Node, loc *models.GeoLocation) *models.MapNode {
	return &models.MapNode{
		Pubkey:       n.Pubkey,
		Address:      n.Address,
		Status:       n.Status,
		Version:      n.Version,
		HealthScore:  n.HealthScore,
		HealthStatus: n.HealthStatus,
		Rank:         n.Rank,
		IsPublic:     n.IsPublic,
		Lat:          loc.Lat,
		Lng:          loc.Lng,
		Country:      loc.Country,
		Region:       loc.Region,
		City:         loc.City,
	}
}

// RegionalClusters groups located nodes by country, largest first. Nodes
// without a country are left out.
func RegionalClusters(nodes []models.MapNode) []models.RegionalCluster {
	byCountry := make(map[string]*models.RegionalCluster)
	var order []string
	healthSum := make(map[string]float64)

	for i := range nodes {
		n := &nodes[i]
		if n.Country == "" {
			continue
		}
		c, ok := byCountry[n.Country]
		if !ok {
			c = &models.RegionalCluster{Region: n.Country}
			byCountry[n.Country] = c
			order = append(order, n.Country)
		}
		c.NodeCount++
		if n.Status == models.StatusOnline {
			c.OnlineCount++
		}
		c.Lat += n.Lat
		c.Lng += n.Lng
		healthSum[n.Country] += float64(n.HealthScore)
		c.Pubkeys = append(c.Pubkeys, n.Pubkey)
	}

	clusters := make([]models.RegionalCluster, 0, len(order))
	for _, country := range order {
		c := byCountry[country]
		count := float64(c.NodeCount)
		c.Lat /= count
		c.Lng /= count
		c.AverageHealth = healthSum[country] / count
		clusters = append(clusters, *c)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].NodeCount > clusters[j].NodeCount
	})
	return clusters
}
