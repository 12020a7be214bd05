package models

// GeoLocation is the result of a successful address lookup
type GeoLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Country string  `json:"country"`
	Region  string  `json:"region"`
	City    string  `json:"city,omitempty"`
}

// MapNode is a node projected onto the map.
type MapNode struct {
	Pubkey       string  `json:"pubkey"`
	Address      string  `json:"address"`
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	HealthScore  int     `json:"healthScore"`
	HealthStatus string  `json:"healthStatus"`
	Rank         int     `json:"rank"`
	IsPublic     bool    `json:"isPublic"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Country      string  `json:"country"`
	Region       string  `json:"region"`
	City         string  `json:"city,omitempty"`
}

func (m MapNode) GetStatus() string   { return m.Status }
func (m MapNode) GetHealthScore() int { return m.HealthScore }

// RegionalCluster groups located nodes by country.
type RegionalCluster struct {
	Region        string   `json:"region"`
	NodeCount     int      `json:"nodeCount"`
	OnlineCount   int      `json:"onlineCount"`
	AverageHealth float64  `json:"averageHealth"`
	Lat           float64  `json:"lat"` // centroid
	Lng           float64  `json:"lng"`
	Pubkeys       []string `json:"pubkeys"`
}
