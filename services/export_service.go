package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pnodedash/models"
	"pnodedash/utils"
)

var (
	ErrNoColumns       = errors.New("select at least one column to export")
	ErrNoNodes         = errors.New("there are no nodes to export")
	ErrUnknownColumn   = errors.New("unknown export column")
	ErrUnsupportedType = errors.New("unsupported export format")
)

// ParseColumns turns a comma separated list of column keys into columns.
// An empty list selects every column.
func ParseColumns(list string) ([]models.ExportColumn, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return append([]models.ExportColumn(nil), models.ExportColumns...), nil
	}

	var cols []models.ExportColumn
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c := models.ExportColumn(CanonicalField(part))
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, part)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// StorageUtilization is used/total as a percentage, 0 when total <= 0.
func StorageUtilization(n *models.Node) float64 {
	if n.StorageTotal <= 0 {
		return 0
	}
	return n.StorageUsed / n.StorageTotal * 100
}

func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// plainNumber prints whole numbers without a fraction and never uses an
// exponent.
func plainNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e18 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// FormatColumn renders one cell of a CSV export.
func FormatColumn(n *models.Node, c models.ExportColumn) string {
	switch c {
	case models.ColumnPubkey:
		return n.Pubkey
	case models.ColumnStatus:
		return n.Status
	case models.ColumnVersion:
		return n.Version
	case models.ColumnHealthScore:
		return strconv.Itoa(n.HealthScore)
	case models.ColumnHealthStatus:
		if n.HealthStatus == "" {
			return utils.HealthStatus(n.HealthScore)
		}
		return n.HealthStatus
	case models.ColumnRank:
		if n.Rank <= 0 {
			return "-"
		}
		return strconv.Itoa(n.Rank)
	case models.ColumnPercentile:
		return n.Percentile
	case models.ColumnPercentileRank:
		return fixed2(n.PercentileRank)
	case models.ColumnUptime:
		return fixed2(n.Uptime)
	case models.ColumnStorageUsed:
		return plainNumber(n.StorageUsed)
	case models.ColumnStorageTotal:
		return plainNumber(n.StorageTotal)
	case models.ColumnStorageCommitted:
		return plainNumber(n.StorageCommitted)
	case models.ColumnStorageUtilization:
		return fixed2(StorageUtilization(n))
	case models.ColumnIP:
		return n.IP
	case models.ColumnAddress:
		return n.Address
	case models.ColumnRpcPort:
		return strconv.Itoa(n.RpcPort)
	case models.ColumnIsPublic:
		return yesNo(n.IsPublic)
	case models.ColumnLastSeen:
		return n.LastSeen
	}
	return ""
}

// columnValue is the typed JSON counterpart of FormatColumn. Unranked nodes
// export a null rank.
func columnValue(n *models.Node, c models.ExportColumn) any {
	switch c {
	case models.ColumnHealthScore:
		return n.HealthScore
	case models.ColumnRank:
		if n.Rank <= 0 {
			return nil
		}
		return n.Rank
	case models.ColumnPercentileRank:
		return round2(n.PercentileRank)
	case models.ColumnUptime:
		return round2(n.Uptime)
	case models.ColumnStorageUsed:
		return n.StorageUsed
	case models.ColumnStorageTotal:
		return n.StorageTotal
	case models.ColumnStorageCommitted:
		return n.StorageCommitted
	case models.ColumnStorageUtilization:
		return round2(StorageUtilization(n))
	case models.ColumnRpcPort:
		return n.RpcPort
	case models.ColumnIsPublic:
		return n.IsPublic
	}
	return FormatColumn(n, c)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func checkExportable(nodes []models.Node, columns []models.ExportColumn) error {
	if len(columns) == 0 {
		return ErrNoColumns
	}
	if len(nodes) == 0 {
		return ErrNoNodes
	}
	for _, c := range columns {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, string(c))
		}
	}
	return nil
}

// ExportToCSV renders nodes as CSV with the selected columns in order. The
// header row, when included, holds the column keys.
func ExportToCSV(nodes []models.Node, columns []models.ExportColumn, includeHeader bool) (string, error) {
	if err := checkExportable(nodes, columns); err != nil {
		return "", err
	}

	var b strings.Builder
	if includeHeader {
		header := make([]string, len(columns))
		for i, c := range columns {
			header[i] = string(c)
		}
		b.WriteString(utils.FormatCSVRecord(header))
		b.WriteString("\n")
	}

	fields := make([]string, len(columns))
	for i := range nodes {
		for j, c := range columns {
			fields[j] = FormatColumn(&nodes[i], c)
		}
		b.WriteString(utils.FormatCSVRecord(fields))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ExportToJSON wraps the projected nodes with export metadata. stats is
// optional.
func ExportToJSON(nodes []models.Node, columns []models.ExportColumn, stats *models.NetworkStats, exportedAt time.Time) (string, error) {
	if err := checkExportable(nodes, columns); err != nil {
		return "", err
	}

	doc := models.ExportDocument{
		Metadata: models.ExportMetadata{
			ExportedAt:   exportedAt,
			TotalNodes:   len(nodes),
			Columns:      columns,
			NetworkStats: stats,
		},
		Nodes: make([]map[string]any, 0, len(nodes)),
	}
	for i := range nodes {
		obj := make(map[string]any, len(columns))
		for _, c := range columns {
			obj[string(c)] = columnValue(&nodes[i], c)
		}
		doc.Nodes = append(doc.Nodes, obj)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	return string(out), nil
}

// Export dispatches on opts.Format.
func Export(nodes []models.Node, opts models.ExportOptions, exportedAt time.Time) (string, error) {
	switch opts.Format {
	case models.ExportCSV, "":
		return ExportToCSV(nodes, opts.Columns, opts.IncludeHeader)
	case models.ExportJSON:
		return ExportToJSON(nodes, opts.Columns, opts.Stats, exportedAt)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, string(opts.Format))
}

// ParseCSVToObjects reads CSV with a header row into one map per data row,
// keyed by the header cells as written.
func ParseCSVToObjects(text string) ([]map[string]string, error) {
	records, err := utils.ParseCSV(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	if len(records) == 0 {
		return []map[string]string{}, nil
	}

	header := records[0]
	out := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		obj := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				obj[h] = rec[i]
			} else {
				obj[h] = ""
			}
		}
		out = append(out, obj)
	}
	return out, nil
}

// ParseJSONToObjects reads a JSON export (or a bare array of objects) back
// into one map per node.
func ParseJSONToObjects(text string) ([]map[string]any, error) {
	var doc struct {
		Nodes []map[string]any `json:"nodes"`
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &doc.Nodes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
		return doc.Nodes, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if doc.Nodes == nil {
		doc.Nodes = []map[string]any{}
	}
	return doc.Nodes, nil
}
