package utils

import (
	"math"

	"pnodedash/models"
)

// DefaultLatestVersion is used when the caller does not know the latest
// version of the network.
const DefaultLatestVersion = "0.8.0"

// Score weights
const (
	uptimeWeight     = 40.0
	uptimeSaturation = 30.0 // days
	storageWeight    = 25.0
	versionCurrent   = 20.0
	versionBehind    = 10.0
	publicAccess     = 15.0
	privateAccess    = 5.0
	maxHealthScore   = 100.0
)

const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
)

// HealthStatuses lists the buckets best first.
var HealthStatuses = []string{HealthExcellent, HealthGood, HealthFair, HealthPoor}

// HealthScorer computes node health scores with a configurable fallback
// for the latest version.
type HealthScorer struct {
	FallbackLatestVersion string
}

// NewHealthScorer returns a scorer; an empty fallback means DefaultLatestVersion.
func NewHealthScorer(fallback string) *HealthScorer {
	if fallback == "" {
		fallback = DefaultLatestVersion
	}
	return &HealthScorer{FallbackLatestVersion: fallback}
}

// Score computes the 0-100 health score of n. An empty latestVersion is
// replaced by the scorer's fallback.
func (s *HealthScorer) Score(n *models.RawNode, latestVersion string) int {
	if latestVersion == "" {
		latestVersion = s.FallbackLatestVersion
	}

	// 1. Uptime (40), saturates at 30 days
	uptime := clamp(n.Uptime/uptimeSaturation*uptimeWeight, 0, uptimeWeight)

	// 2. Storage efficiency (25)
	var storage float64
	if n.StorageTotal > 0 {
		storage = clamp(n.StorageCommitted/n.StorageTotal*storageWeight, 0, storageWeight)
	}

	// 3. Version currency (20 / 10), exact string match
	version := versionBehind
	if n.Version == latestVersion {
		version = versionCurrent
	}

	// 4. Public access (15 / 5)
	access := privateAccess
	if n.IsPublic {
		access = publicAccess
	}

	total := uptime + storage + version + access
	return int(math.Round(clamp(total, 0, maxHealthScore)))
}

// CalculateHealthScore scores n against latestVersion, falling back to
// DefaultLatestVersion when latestVersion is empty.
func CalculateHealthScore(n *models.RawNode, latestVersion string) int {
	return NewHealthScorer(DefaultLatestVersion).Score(n, latestVersion)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HealthStatus buckets a score. Every other health derivation goes through it.
func HealthStatus(score int) string {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	default:
		return HealthPoor
	}
}

var healthColors = map[string]string{
	HealthExcellent: "#22c55e",
	HealthGood:      "#3b82f6",
	HealthFair:      "#eab308",
	HealthPoor:      "#ef4444",
}

var healthBadges = map[string]string{
	HealthExcellent: "default",
	HealthGood:      "secondary",
	HealthFair:      "outline",
	HealthPoor:      "destructive",
}

var healthLabels = map[string]string{
	HealthExcellent: "Excellent",
	HealthGood:      "Good",
	HealthFair:      "Fair",
	HealthPoor:      "Poor",
}

// HealthColor returns the chart color for a score.
func HealthColor(score int) string {
	return healthColors[HealthStatus(score)]
}

// HealthBadgeVariant returns the badge variant for a score.
func HealthBadgeVariant(score int) string {
	return healthBadges[HealthStatus(score)]
}

// HealthLabel returns the display label for a score.
func HealthLabel(score int) string {
	return healthLabels[HealthStatus(score)]
}

// HealthStatusLabel returns the display label of a status bucket.
func HealthStatusLabel(status string) string {
	if l, ok := healthLabels[status]; ok {
		return l
	}
	return status
}
