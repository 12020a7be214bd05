package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"pnodedash/metrics"
	"pnodedash/models"
	"pnodedash/utils"
)

// GetNetworkStats reduces nodes into network-wide statistics. Totals and
// counts use every node; storage, uptime and health averages use online
// nodes only. Every ratio is 0 when its denominator is 0. LastUpdated is left
// for the caller to set.
func GetNetworkStats(nodes []models.Node) models.NetworkStats {
	stats := models.NetworkStats{
		TotalNodes:    len(nodes),
		LatestVersion: utils.NoVersion,
	}
	if len(nodes) == 0 {
		return stats
	}

	var (
		uptimes  []float64
		scores   []float64
		totals   []float64
		useds    []float64
		versions = make([]models.RawNode, 0, len(nodes))
	)
	for i := range nodes {
		n := &nodes[i]
		versions = append(versions, n.RawNode)

		if !n.IsOnline() {
			stats.OfflineNodes++
			continue
		}
		stats.OnlineNodes++
		if n.IsPublic {
			stats.PublicNodes++
		} else {
			stats.PrivateNodes++
		}
		uptimes = append(uptimes, n.Uptime)
		scores = append(scores, float64(n.HealthScore))
		totals = append(totals, n.StorageTotal)
		useds = append(useds, n.StorageUsed)
	}

	online := float64(max(stats.OnlineNodes, 1))
	if stats.OnlineNodes > 0 {
		stats.TotalStorage = floats.Sum(totals)
		stats.UsedStorage = floats.Sum(useds)
		stats.AverageUptime = floats.Sum(uptimes) / online
		stats.AverageHealthScore = floats.Sum(scores) / online
	}
	if stats.TotalStorage > 0 {
		stats.StorageUtilization = stats.UsedStorage / stats.TotalStorage * 100
	}
	stats.LatestVersion = utils.GetLatestVersion(versions)

	return stats
}

// GetNodesByVersion groups nodes by exact version string. Entries appear in
// order of first occurrence; percentages are over all nodes.
func GetNodesByVersion(nodes []models.Node) []models.VersionDistributionEntry {
	counts := make(map[string]int)
	var order []string
	for i := range nodes {
		v := nodes[i].Version
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}

	out := make([]models.VersionDistributionEntry, 0, len(order))
	for _, v := range order {
		out = append(out, models.VersionDistributionEntry{
			Version:    v,
			Count:      counts[v],
			Percentage: percentOf(counts[v], len(nodes)),
		})
	}
	return out
}

// GetHealthDistribution counts nodes per health status, best status first.
// Every status is present even when its count is 0.
func GetHealthDistribution(nodes []models.Node) []models.HealthDistributionEntry {
	counts := make(map[string]int, len(utils.HealthStatuses))
	for i := range nodes {
		counts[utils.HealthStatus(nodes[i].HealthScore)]++
	}

	out := make([]models.HealthDistributionEntry, 0, len(utils.HealthStatuses))
	for _, status := range utils.HealthStatuses {
		out = append(out, models.HealthDistributionEntry{
			Status:     status,
			Label:      utils.HealthStatusLabel(status),
			Count:      counts[status],
			Percentage: percentOf(counts[status], len(nodes)),
		})
	}
	return out
}

func percentOf(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// EnrichNodes scores every raw node against the snapshot's latest version
// and attaches its version status. The result is not ranked.
func EnrichNodes(raw []models.RawNode, scorer *utils.HealthScorer, versions utils.VersionConfig) []models.Node {
	if scorer == nil {
		scorer = utils.NewHealthScorer("")
	}

	latest := ""
	if len(raw) > 0 {
		latest = utils.GetLatestVersion(raw)
	}
	if latest != "" && latest != utils.NoVersion {
		versions.CurrentStable = latest
	} else if versions.CurrentStable == "" {
		versions.CurrentStable = scorer.FallbackLatestVersion
	}

	nodes := make([]models.Node, len(raw))
	for i := range raw {
		score := scorer.Score(&raw[i], latest)
		status, upgrade, severity := utils.CheckVersionStatus(raw[i].Version, &versions)

		nodes[i] = models.Node{
			RawNode:         raw[i],
			HealthScore:     score,
			HealthStatus:    utils.HealthStatus(score),
			VersionStatus:   status,
			IsUpgradeNeeded: upgrade,
			UpgradeSeverity: severity,
		}
	}
	return nodes
}

// DataAggregator turns a snapshot into a Dashboard.
type DataAggregator struct {
	source   SnapshotSource
	scorer   *utils.HealthScorer
	versions utils.VersionConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// AggregatorOptions configures a DataAggregator. Zero values fall back to
// defaults.
type AggregatorOptions struct {
	FallbackLatestVersion string
	MinSupported          string
	Deprecated            string
	Metrics               *metrics.Metrics
	Logger                *zap.Logger
	Clock                 func() time.Time
}

func NewDataAggregator(source SnapshotSource, opts AggregatorOptions) *DataAggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	versions := utils.VersionConfig{
		MinSupported: opts.MinSupported,
		Deprecated:   opts.Deprecated,
	}

	return &DataAggregator{
		source:   source,
		scorer:   utils.NewHealthScorer(opts.FallbackLatestVersion),
		versions: versions,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      now,
	}
}

// Scorer returns the health scorer used for enrichment.
func (da *DataAggregator) Scorer() *utils.HealthScorer {
	return da.scorer
}

// Build runs the full pipeline over raw records: enrich, rank, aggregate.
func (da *DataAggregator) Build(raw []models.RawNode) *models.Dashboard {
	start := time.Now()

	ranked := RankNodes(EnrichNodes(raw, da.scorer, da.versions))

	stats := GetNetworkStats(ranked)
	generatedAt := da.now()
	stats.LastUpdated = generatedAt

	d := &models.Dashboard{
		Nodes:              ranked,
		Stats:              stats,
		Versions:           GetNodesByVersion(ranked),
		HealthDistribution: GetHealthDistribution(ranked),
		GeneratedAt:        generatedAt,
	}

	da.metrics.ObservePipeline(time.Since(start))

	return d
}

// Aggregate loads a snapshot from the source and builds a Dashboard from it.
func (da *DataAggregator) Aggregate(ctx context.Context) (*models.Dashboard, error) {
	raw, err := da.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot from %s: %w", da.source.Name(), err)
	}

	d := da.Build(raw)
	// only the live snapshot feeds the gauge, imports go through Build alone
	da.metrics.SetSnapshotNodes(d.Stats.OnlineNodes, d.Stats.OfflineNodes)

	da.logger.Info("Aggregated snapshot",
		zap.Int("nodes", d.Stats.TotalNodes),
		zap.Int("online", d.Stats.OnlineNodes),
		zap.Int("offline", d.Stats.OfflineNodes),
		zap.Float64("avg_health", d.Stats.AverageHealthScore),
		zap.String("latest_version", d.Stats.LatestVersion),
	)
	return d, nil
}
