package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnodedash/metrics"
	"pnodedash/models"
	"pnodedash/utils"
)

func rawNode(pubkey, status, version string) models.RawNode {
	return models.RawNode{Pubkey: pubkey, Status: status, Version: version}
}

func rawNodes(nodes ...models.RawNode) []models.RawNode { return nodes }

func TestGetNetworkStats_Empty(t *testing.T) {
	stats := GetNetworkStats(nil)

	assert.Zero(t, stats.TotalNodes)
	assert.Zero(t, stats.OnlineNodes)
	assert.Zero(t, stats.OfflineNodes)
	assert.Zero(t, stats.TotalStorage)
	assert.Zero(t, stats.StorageUtilization)
	assert.Zero(t, stats.AverageUptime)
	assert.Zero(t, stats.AverageHealthScore)
	assert.Equal(t, "0.0.0", stats.LatestVersion)
}

func TestGetNetworkStats(t *testing.T) {
	nodes := []models.Node{
		{RawNode: models.RawNode{Status: "online", Version: "0.8.0", Uptime: 10, StorageTotal: 100, StorageUsed: 25, IsPublic: true}, HealthScore: 80},
		{RawNode: models.RawNode{Status: "online", Version: "0.8.1", Uptime: 20, StorageTotal: 300, StorageUsed: 75}, HealthScore: 60},
		{RawNode: models.RawNode{Status: "offline", Version: "0.9.0", Uptime: 99, StorageTotal: 1000, StorageUsed: 1000, IsPublic: true}, HealthScore: 10},
	}

	stats := GetNetworkStats(nodes)

	assert.Equal(t, 3, stats.TotalNodes)
	assert.Equal(t, 2, stats.OnlineNodes)
	assert.Equal(t, 1, stats.OfflineNodes)
	assert.Equal(t, 400.0, stats.TotalStorage)
	assert.Equal(t, 100.0, stats.UsedStorage)
	assert.Equal(t, 25.0, stats.StorageUtilization)
	assert.Equal(t, 15.0, stats.AverageUptime)
	assert.Equal(t, 70.0, stats.AverageHealthScore)
	// the offline public node is not counted
	assert.Equal(t, 1, stats.PublicNodes)
	assert.Equal(t, 1, stats.PrivateNodes)
	assert.Equal(t, "0.9.0", stats.LatestVersion)
}

func TestGetNetworkStats_AllOffline(t *testing.T) {
	nodes := []models.Node{
		{RawNode: models.RawNode{Status: "offline", Uptime: 5, StorageTotal: 10}, HealthScore: 50},
	}
	stats := GetNetworkStats(nodes)

	assert.Equal(t, 1, stats.OfflineNodes)
	assert.Zero(t, stats.PublicNodes)
	assert.Zero(t, stats.PrivateNodes)
	assert.Zero(t, stats.AverageUptime)
	assert.Zero(t, stats.AverageHealthScore)
	assert.Zero(t, stats.StorageUtilization)
}

func TestGetNodesByVersion(t *testing.T) {
	nodes := []models.Node{
		{RawNode: rawNode("a", "online", "1.0.0")},
		{RawNode: rawNode("b", "offline", "2.0.0")},
		{RawNode: rawNode("c", "online", "1.0.0")},
		{RawNode: rawNode("d", "offline", "1.0.0")},
	}

	dist := GetNodesByVersion(nodes)
	assert.Equal(t, []models.VersionDistributionEntry{
		{Version: "1.0.0", Count: 3, Percentage: 75},
		{Version: "2.0.0", Count: 1, Percentage: 25},
	}, dist)

	assert.Empty(t, GetNodesByVersion(nil))
}

func TestGetHealthDistribution(t *testing.T) {
	nodes := []models.Node{{HealthScore: 95}, {HealthScore: 81}, {HealthScore: 45}, {HealthScore: 3}}

	dist := GetHealthDistribution(nodes)
	require.Len(t, dist, 4)
	assert.Equal(t, utils.HealthExcellent, dist[0].Status)
	assert.Equal(t, 2, dist[0].Count)
	assert.Equal(t, 50.0, dist[0].Percentage)
	assert.Equal(t, 0, dist[1].Count)
	assert.Equal(t, "Fair", dist[2].Label)
	assert.Equal(t, 1, dist[3].Count)

	for _, e := range GetHealthDistribution(nil) {
		assert.Zero(t, e.Percentage)
	}
}

func TestEnrichNodes(t *testing.T) {
	raw := []models.RawNode{
		{Pubkey: "current", Status: "online", Version: "1.0.0", Uptime: 30, StorageCommitted: 100, StorageTotal: 100, IsPublic: true},
		{Pubkey: "behind", Status: "online", Version: "0.7.0", Uptime: 30, StorageTotal: 0, IsPublic: true},
	}

	nodes := EnrichNodes(raw, utils.NewHealthScorer(""), utils.VersionConfig{MinSupported: "0.7.3", Deprecated: "0.7.2"})
	require.Len(t, nodes, 2)

	assert.Equal(t, 100, nodes[0].HealthScore)
	assert.Equal(t, utils.HealthExcellent, nodes[0].HealthStatus)
	assert.Equal(t, "current", nodes[0].VersionStatus)

	// 40 + 0 + 10 + 15
	assert.Equal(t, 65, nodes[1].HealthScore)
	assert.Equal(t, "deprecated", nodes[1].VersionStatus)
	assert.True(t, nodes[1].IsUpgradeNeeded)
	assert.Equal(t, "critical", nodes[1].UpgradeSeverity)
}

type failingSource struct{}

func (failingSource) Load(context.Context) ([]models.RawNode, error) {
	return nil, errors.New("disk on fire")
}
func (failingSource) Name() string { return "failing" }

func TestDataAggregator_Aggregate(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewStaticSnapshotSource("test", []models.RawNode{
		{Pubkey: "low", Status: "online", Version: "0.8.0", Uptime: 1},
		{Pubkey: "high", Status: "online", Version: "0.8.0", Uptime: 30, StorageCommitted: 1, StorageTotal: 1, IsPublic: true},
		{Pubkey: "gone", Status: "offline", Version: "0.7.0"},
	})
	agg := NewDataAggregator(src, AggregatorOptions{Clock: func() time.Time { return at }})

	d, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	require.Len(t, d.Nodes, 3)
	assert.Equal(t, "high", d.Nodes[0].Pubkey)
	assert.Equal(t, 1, d.Nodes[0].Rank)
	assert.Equal(t, at, d.GeneratedAt)
	assert.Equal(t, at, d.Stats.LastUpdated)
	assert.Equal(t, 3, d.Stats.TotalNodes)
	assert.Equal(t, "0.8.0", d.Stats.LatestVersion)
	assert.Len(t, d.Versions, 2)
	assert.Len(t, d.HealthDistribution, 4)

	_, err = NewDataAggregator(failingSource{}, AggregatorOptions{}).Aggregate(context.Background())
	assert.ErrorContains(t, err, "disk on fire")
}

func TestDataAggregator_SnapshotGaugeOnlyFromSource(t *testing.T) {
	m := metrics.NewMetrics()
	src := NewStaticSnapshotSource("test", rawNodes(
		rawNode("a", "online", "0.8.0"),
		rawNode("b", "online", "0.8.0"),
		rawNode("c", "offline", "0.8.0"),
	))
	agg := NewDataAggregator(src, AggregatorOptions{Metrics: m})

	// imported nodes are built without touching the live gauge
	agg.Build(rawNodes(rawNode("x", "online", "0.8.0")))
	count, err := testutil.GatherAndCount(m.Registry(), "pnodedash_snapshot_nodes")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = agg.Aggregate(context.Background())
	require.NoError(t, err)
	agg.Build(rawNodes(rawNode("x", "offline", "0.8.0")))

	expected := `
# HELP pnodedash_snapshot_nodes Nodes in the current snapshot by status
# TYPE pnodedash_snapshot_nodes gauge
pnodedash_snapshot_nodes{status="offline"} 1
pnodedash_snapshot_nodes{status="online"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pnodedash_snapshot_nodes"))
}
