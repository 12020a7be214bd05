package models

import "time"

// ExportFormat is the output format of an export
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ExportColumn is one of the fixed set of exportable fields.
type ExportColumn string

const (
	ColumnPubkey             ExportColumn = "pubkey"
	ColumnStatus             ExportColumn = "status"
	ColumnVersion            ExportColumn = "version"
	ColumnHealthScore        ExportColumn = "healthScore"
	ColumnHealthStatus       ExportColumn = "healthStatus"
	ColumnRank               ExportColumn = "rank"
	ColumnPercentile         ExportColumn = "percentile"
	ColumnPercentileRank     ExportColumn = "percentileRank"
	ColumnUptime             ExportColumn = "uptime"
	ColumnStorageUsed        ExportColumn = "storageUsed"
	ColumnStorageTotal       ExportColumn = "storageTotal"
	ColumnStorageCommitted   ExportColumn = "storageCommitted"
	ColumnStorageUtilization ExportColumn = "storageUtilization"
	ColumnIP                 ExportColumn = "ip"
	ColumnAddress            ExportColumn = "address"
	ColumnRpcPort            ExportColumn = "rpcPort"
	ColumnIsPublic           ExportColumn = "isPublic"
	ColumnLastSeen           ExportColumn = "lastSeen"
)

// ExportColumns lists every exportable column in default order.
var ExportColumns = []ExportColumn{
	ColumnPubkey, ColumnStatus, ColumnVersion, ColumnHealthScore, ColumnHealthStatus,
	ColumnRank, ColumnPercentile, ColumnPercentileRank, ColumnUptime,
	ColumnStorageUsed, ColumnStorageTotal, ColumnStorageCommitted, ColumnStorageUtilization,
	ColumnIP, ColumnAddress, ColumnRpcPort, ColumnIsPublic, ColumnLastSeen,
}

var columnLabels = map[ExportColumn]string{
	ColumnPubkey:             "Pubkey",
	ColumnStatus:             "Status",
	ColumnVersion:            "Version",
	ColumnHealthScore:        "Health Score",
	ColumnHealthStatus:       "Health Status",
	ColumnRank:               "Rank",
	ColumnPercentile:         "Percentile",
	ColumnPercentileRank:     "Percentile Rank",
	ColumnUptime:             "Uptime (days)",
	ColumnStorageUsed:        "Storage Used",
	ColumnStorageTotal:       "Storage Total",
	ColumnStorageCommitted:   "Storage Committed",
	ColumnStorageUtilization: "Storage Utilization (%)",
	ColumnIP:                 "IP",
	ColumnAddress:            "Address",
	ColumnRpcPort:            "RPC Port",
	ColumnIsPublic:           "Public",
	ColumnLastSeen:           "Last Seen",
}

// Label returns the human readable header for the column.
func (c ExportColumn) Label() string {
	if l, ok := columnLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is a member of the exportable set.
func (c ExportColumn) Valid() bool {
	_, ok := columnLabels[c]
	return ok
}

// ExportOptions controls an export.
type ExportOptions struct {
	Format        ExportFormat
	Columns       []ExportColumn
	IncludeHeader bool
	Stats         *NetworkStats // JSON only, optional
}

// ExportMetadata heads a JSON export.
type ExportMetadata struct {
	ExportedAt   time.Time      `json:"exportedAt"`
	TotalNodes   int            `json:"totalNodes"`
	Columns      []ExportColumn `json:"columns"`
	NetworkStats *NetworkStats  `json:"networkStats,omitempty"`
}

// ExportDocument is the JSON export envelope.
type ExportDocument struct {
	Metadata ExportMetadata   `json:"metadata"`
	Nodes    []map[string]any `json:"nodes"`
}
