package models

import "time"

// NetworkStats represents aggregated network statistics for one snapshot
type NetworkStats struct {
	TotalNodes   int `json:"totalNodes"`
	OnlineNodes  int `json:"onlineNodes"`
	OfflineNodes int `json:"offlineNodes"`

	TotalStorage       float64 `json:"totalStorage"` // bytes, online nodes
	UsedStorage        float64 `json:"usedStorage"`  // bytes, online nodes
	StorageUtilization float64 `json:"storageUtilization"`

	AverageUptime      float64 `json:"averageUptime"`      // days
	AverageHealthScore float64 `json:"averageHealthScore"` // online nodes only

	PublicNodes  int `json:"publicNodes"` // online nodes only
	PrivateNodes int `json:"privateNodes"`

	LatestVersion string `json:"latestVersion"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// VersionDistributionEntry is one bar of the version chart.
type VersionDistributionEntry struct {
	Version    string  `json:"version"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"` // over all nodes, online or not
}

// HealthDistributionEntry counts nodes per health status.
type HealthDistributionEntry struct {
	Status     string  `json:"status"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Dashboard is everything derived from a single snapshot.
type Dashboard struct {
	Nodes              []Node                     `json:"nodes"`
	Stats              NetworkStats               `json:"stats"`
	Versions           []VersionDistributionEntry `json:"versions"`
	HealthDistribution []HealthDistributionEntry  `json:"healthDistribution"`
	Generation         uint64                     `json:"generation"`
	GeneratedAt        time.Time                  `json:"generatedAt"`
}

// FindNode looks a node up by pubkey or address.
func (d *Dashboard) FindNode(id string) (*Node, bool) {
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.Pubkey == id || (n.Address != "" && n.Address == id) {
			return n, true
		}
	}
	return nil, false
}
