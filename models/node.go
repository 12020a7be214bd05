package models

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// AllStatuses is the full status enum, in display order.
var AllStatuses = []string{StatusOnline, StatusOffline}

// RawNode is a pNode record exactly as it appears in a telemetry snapshot.
type RawNode struct {
	// Identity
	Pubkey  string `json:"pubkey"`
	Status  string `json:"status"` // "online", "offline"
	Version string `json:"version"`

	// Storage (bytes)
	StorageUsed      float64 `json:"storageUsed"`
	StorageTotal     float64 `json:"storageTotal"`
	StorageCommitted float64 `json:"storageCommitted"`

	Uptime float64 `json:"uptime"` // days

	// Network
	IP       string `json:"ip"`
	Address  string `json:"address"` // "IP:Port"
	RpcPort  int    `json:"rpcPort"`
	IsPublic bool   `json:"isPublic"`

	// Freshness
	LastSeen          string `json:"lastSeen"`          // ISO 8601
	LastSeenTimestamp int64  `json:"lastSeenTimestamp"` // epoch millis
}

// IsOnline reports whether the node was online in the snapshot.
func (n *RawNode) IsOnline() bool {
	return n.Status == StatusOnline
}

// Node is a RawNode enriched by the metrics pipeline.
type Node struct {
	RawNode

	HealthScore  int    `json:"healthScore"`
	HealthStatus string `json:"healthStatus"` // "excellent", "good", "fair", "poor"

	VersionStatus   string `json:"versionStatus"`
	IsUpgradeNeeded bool   `json:"isUpgradeNeeded"`
	UpgradeSeverity string `json:"upgradeSeverity"`

	// Set by the ranker. Rank 0 means unranked.
	Rank           int     `json:"rank,omitempty"`
	PercentileRank float64 `json:"percentileRank,omitempty"`
	Percentile     string  `json:"percentile,omitempty"`
}

func (n Node) GetStatus() string   { return n.Status }
func (n Node) GetHealthScore() int { return n.HealthScore }
