package services

import (
	"sort"

	"pnodedash/models"
)

// Percentile bucket labels, best first.
const (
	PercentileTop10    = "Top 10%"
	PercentileTop25    = "Top 25%"
	PercentileTop50    = "Top 50%"
	PercentileBottom50 = "Bottom 50%"
)

// RankNodes returns a copy of nodes ordered by health score, best first,
// with Rank, PercentileRank and Percentile set. Nodes with equal scores keep
// their input order. The input slice is not modified.
func RankNodes(nodes []models.Node) []models.Node {
	ranked := make([]models.Node, len(nodes))
	copy(ranked, nodes)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].HealthScore > ranked[j].HealthScore
	})

	total := float64(max(len(ranked), 1))
	for i := range ranked {
		pr := (total - float64(i)) / total * 100
		ranked[i].Rank = i + 1
		ranked[i].PercentileRank = pr
		ranked[i].Percentile = PercentileBucket(pr)
	}
	return ranked
}

// PercentileBucket maps a percentile rank to its label.
func PercentileBucket(percentileRank float64) string {
	switch {
	case percentileRank >= 90:
		return PercentileTop10
	case percentileRank >= 75:
		return PercentileTop25
	case percentileRank >= 50:
		return PercentileTop50
	default:
		return PercentileBottom50
	}
}
