package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"pnodedash/metrics"
	"pnodedash/models"
	"pnodedash/utils"
)

var (
	ErrUnknownFormat = errors.New("unrecognized file format: expected CSV or JSON")
	ErrMalformedCSV  = errors.New("malformed CSV")
	ErrMalformedJSON = errors.New("malformed JSON")
	ErrNoRows        = errors.New("file contains no data rows")
)

const (
	DefaultPreviewRows = 10
	DefaultMaxErrors   = 50
	DefaultRPCPort     = 8899
	MinPubkeyLength    = 32
)

// Fields checked by the validator.
const (
	FieldPubkey       = "pubkey"
	FieldStatus       = "status"
	FieldHealthScore  = "healthScore"
	FieldUptime       = "uptime"
	FieldStorageUsed  = "storageUsed"
	FieldStorageTotal = "storageTotal"
	FieldIsPublic     = "isPublic"
	FieldIP           = "ip"
	FieldRpcPort      = "rpcPort"
)

var requiredFields = []string{FieldPubkey, FieldStatus}

// Extra spellings seen in hand-made files; export column keys and labels
// are registered on top of these.
var extraAliases = map[string]string{
	"publickey":    FieldPubkey,
	"id":           FieldPubkey,
	"health":       FieldHealthScore,
	"uptimedays":   FieldUptime,
	"public":       FieldIsPublic,
	"ipaddress":    FieldIP,
	"port":         FieldRpcPort,
	"lastseenat":   "lastSeen",
	"lastseents":   "lastSeenTimestamp",
	"lastseentime": "lastSeenTimestamp",
}

var headerAliases = buildHeaderAliases()

func buildHeaderAliases() map[string]string {
	aliases := make(map[string]string, len(extraAliases)+2*len(models.ExportColumns))
	for k, v := range extraAliases {
		aliases[k] = v
	}
	for _, c := range models.ExportColumns {
		aliases[normalizeHeader(string(c))] = string(c)
		aliases[normalizeHeader(c.Label())] = string(c)
	}
	aliases[normalizeHeader("lastSeenTimestamp")] = "lastSeenTimestamp"
	return aliases
}

// normalizeHeader lowercases and drops everything but letters and digits,
// so "Health Score", "health_score" and "healthScore" collapse together.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range h {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// CanonicalField maps a header to its canonical field name. Unknown headers
// are returned trimmed but otherwise unchanged.
func CanonicalField(header string) string {
	if f, ok := headerAliases[normalizeHeader(header)]; ok {
		return f
	}
	return strings.TrimSpace(header)
}

// DetectFormat classifies text as JSON (it parses and starts with '{' or
// '['), CSV (it contains a comma and a line break) or unknown.
func DetectFormat(text string) models.ImportFormat {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return models.FormatJSON
		}
	}
	if strings.Contains(text, ",") && strings.Contains(text, "\n") {
		return models.FormatCSV
	}
	return models.FormatUnknown
}

// ParseImportText detects the format of text and parses it into rows. Any
// parse failure rejects the whole file.
func ParseImportText(text string) (models.ImportFormat, []models.ImportRow, error) {
	format := DetectFormat(text)

	var (
		rows []models.ImportRow
		err  error
	)
	switch format {
	case models.FormatJSON:
		rows, err = parseJSONRows(text)
	case models.FormatCSV:
		rows, err = parseCSVRows(text)
	default:
		return format, nil, ErrUnknownFormat
	}
	if err != nil {
		return format, nil, err
	}
	if len(rows) == 0 {
		return format, nil, ErrNoRows
	}
	return format, rows, nil
}

func parseCSVRows(text string) ([]models.ImportRow, error) {
	records, err := utils.ParseCSV(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	if len(records) == 0 {
		return nil, ErrNoRows
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = CanonicalField(h)
	}

	rows := make([]models.ImportRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(models.ImportRow, len(header))
		for i, field := range header {
			if field == "" || i >= len(rec) {
				continue
			}
			row[field] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseJSONRows(text string) ([]models.ImportRow, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		nodes, ok := v["nodes"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: object has no \"nodes\" array", ErrMalformedJSON)
		}
		items = nodes
	default:
		return nil, fmt.Errorf("%w: expected an array or an object", ErrMalformedJSON)
	}

	rows := make([]models.ImportRow, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedJSON, i+1)
		}
		row := make(models.ImportRow, len(obj))
		for k, val := range obj {
			if s, ok := jsonScalarText(val); ok {
				row[CanonicalField(k)] = s
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// jsonScalarText renders a decoded JSON value as the text a CSV cell would
// hold. null is reported as absent.
func jsonScalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(t); err != nil {
			return "", false
		}
		return strings.TrimSpace(buf.String()), true
	}
}

var ipv4Shape = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

type fieldValidator func(value string) string

// Optional field checks. Each returns an error message, or "" when the
// value is acceptable.
var fieldValidators = map[string]fieldValidator{
	FieldStatus: func(v string) string {
		s := strings.ToLower(v)
		if s != models.StatusOnline && s != models.StatusOffline {
			return "status must be \"online\" or \"offline\""
		}
		return ""
	},
	FieldHealthScore: func(v string) string {
		f, ok := parseFinite(v)
		if !ok || f < 0 || f > 100 {
			return "healthScore must be a number between 0 and 100"
		}
		return ""
	},
	FieldUptime:       nonNegative(FieldUptime),
	FieldStorageUsed:  nonNegative(FieldStorageUsed),
	FieldStorageTotal: nonNegative(FieldStorageTotal),
	FieldIsPublic: func(v string) string {
		if _, ok := parseBoolish(v); !ok {
			return "isPublic must be true/false, yes/no or 1/0"
		}
		return ""
	},
	FieldIP: func(v string) string {
		if !ipv4Shape.MatchString(v) {
			return "ip must be an IPv4 address"
		}
		return ""
	},
	FieldRpcPort: func(v string) string {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			return "rpcPort must be an integer between 1 and 65535"
		}
		return ""
	},
}

// fixed order so errors come out deterministically
var validatedFields = []string{
	FieldStatus, FieldHealthScore, FieldUptime, FieldStorageUsed, FieldStorageTotal,
	FieldIsPublic, FieldIP, FieldRpcPort,
}

func nonNegative(field string) fieldValidator {
	return func(v string) string {
		f, ok := parseFinite(v)
		if !ok || f < 0 {
			return field + " must be a non-negative number"
		}
		return ""
	}
}

func parseBoolish(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

// ValidateRow checks one row. rowNum is the 1-based data row number.
func ValidateRow(rowNum int, row models.ImportRow) models.ValidatedRow {
	vr := models.ValidatedRow{Row: rowNum, Data: row}
	addErr := func(field, msg string) {
		vr.Errors = append(vr.Errors, models.ValidationError{
			Row:     rowNum,
			Field:   field,
			Message: msg,
			Value:   row[field],
		})
	}

	for _, f := range requiredFields {
		if !row.Has(f) {
			addErr(f, f+" is required")
		}
	}
	if row.Has(FieldPubkey) && len(row[FieldPubkey]) < MinPubkeyLength {
		addErr(FieldPubkey, fmt.Sprintf("pubkey must be at least %d characters", MinPubkeyLength))
	}

	for _, f := range validatedFields {
		if !row.Has(f) {
			continue
		}
		if msg := fieldValidators[f](row[f]); msg != "" {
			addErr(f, msg)
		}
	}
	return vr
}

// ValidateRows validates every row independently. Errors never stop the
// remaining rows from being checked.
func ValidateRows(rows []models.ImportRow) models.ValidationReport {
	report := models.ValidationReport{
		Rows:   make([]models.ValidatedRow, 0, len(rows)),
		Errors: []models.ValidationError{},
	}
	for i, row := range rows {
		vr := ValidateRow(i+1, row)
		if vr.Valid() {
			report.ValidCount++
		} else {
			report.InvalidCount++
			report.Errors = append(report.Errors, vr.Errors...)
		}
		report.Rows = append(report.Rows, vr)
	}
	return report
}

// parseFinite rejects NaN and infinities, which ParseFloat accepts.
func parseFinite(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseFloatOr(v string, def float64) float64 {
	f, ok := parseFinite(v)
	if !ok {
		return def
	}
	return f
}

// ConvertRow coerces a row into a RawNode. It never fails: missing or
// unparsable numbers become 0 and the RPC port defaults to DefaultRPCPort.
func ConvertRow(row models.ImportRow) models.RawNode {
	n := models.RawNode{
		Pubkey:           row[FieldPubkey],
		Status:           strings.ToLower(row[FieldStatus]),
		Version:          row["version"],
		StorageUsed:      parseFloatOr(row[FieldStorageUsed], 0),
		StorageTotal:     parseFloatOr(row[FieldStorageTotal], 0),
		StorageCommitted: parseFloatOr(row["storageCommitted"], 0),
		Uptime:           parseFloatOr(row[FieldUptime], 0),
		IP:               row[FieldIP],
		Address:          row["address"],
		RpcPort:          DefaultRPCPort,
		LastSeen:         row["lastSeen"],
	}

	if p, err := strconv.Atoi(row[FieldRpcPort]); err == nil && p >= 1 && p <= 65535 {
		n.RpcPort = p
	}
	if b, ok := parseBoolish(row[FieldIsPublic]); ok {
		n.IsPublic = b
	}
	if ts, err := strconv.ParseInt(row["lastSeenTimestamp"], 10, 64); err == nil {
		n.LastSeenTimestamp = ts
	}
	return n
}

// ImportService runs the parse, validate and convert phases with
// configured limits.
type ImportService struct {
	previewRows int
	maxErrors   int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewImportService creates an ImportService. Non-positive limits use the
// defaults.
func NewImportService(previewRows, maxErrors int, m *metrics.Metrics, logger *zap.Logger) *ImportService {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		previewRows: previewRows,
		maxErrors:   maxErrors,
		metrics:     m,
		logger:      logger,
	}
}

func (s *ImportService) capErrors(errs []models.ValidationError) ([]models.ValidationError, bool) {
	if len(errs) > s.maxErrors {
		return errs[:s.maxErrors], true
	}
	return errs, false
}

// Preview parses and validates text and returns the first rows with the
// aggregate counts. Nothing is converted.
func (s *ImportService) Preview(text string) (*models.ImportPreview, error) {
	format, rows, err := ParseImportText(text)
	if err != nil {
		return nil, err
	}

	report := ValidateRows(rows)
	errs, truncated := s.capErrors(report.Errors)

	head := rows
	if len(head) > s.previewRows {
		head = head[:s.previewRows]
	}

	return &models.ImportPreview{
		Format:          format,
		Rows:            head,
		TotalRows:       len(rows),
		ValidCount:      report.ValidCount,
		InvalidCount:    report.InvalidCount,
		Errors:          errs,
		ErrorsTruncated: truncated,
	}, nil
}

// Import parses and validates text and converts the valid rows. Invalid
// rows are skipped and reported.
func (s *ImportService) Import(text string) (*models.ImportResult, error) {
	format, rows, err := ParseImportText(text)
	if err != nil {
		s.logger.Info("Import rejected", zap.Error(err))
		return nil, err
	}

	report := ValidateRows(rows)
	nodes := make([]models.RawNode, 0, report.ValidCount)
	for _, vr := range report.Rows {
		if vr.Valid() {
			nodes = append(nodes, ConvertRow(vr.Data))
		}
	}
	errs, truncated := s.capErrors(report.Errors)

	s.metrics.RecordImportRows(report.ValidCount, report.InvalidCount)
	s.logger.Info("Import completed",
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
		zap.Int("imported", report.ValidCount),
		zap.Int("skipped", report.InvalidCount))

	return &models.ImportResult{
		Format:          format,
		TotalRows:       len(rows),
		ImportedCount:   report.ValidCount,
		SkippedCount:    report.InvalidCount,
		Nodes:           nodes,
		Errors:          errs,
		ErrorsTruncated: truncated,
	}, nil
}
