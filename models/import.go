package models

// ImportFormat is the detected format of an uploaded file
type ImportFormat string

const (
	FormatJSON    ImportFormat = "json"
	FormatCSV     ImportFormat = "csv"
	FormatUnknown ImportFormat = "unknown"
)

// ImportRow is one parsed row before validation. Keys are canonical field
// names; values are the raw text of the cell (or the JSON scalar rendered as text).
type ImportRow map[string]string

// Has reports whether the field is present with a non-blank value.
func (r ImportRow) Has(field string) bool {
	v, ok := r[field]
	return ok && v != ""
}

// ValidationError describes one failed field check.
type ValidationError struct {
	Row     int    `json:"row"` // 1-based data row, header excluded
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value"`
}

// ValidatedRow is an ImportRow together with its validation outcome.
type ValidatedRow struct {
	Row    int               `json:"row"`
	Data   ImportRow         `json:"data"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Valid reports whether the row passed every check.
func (v ValidatedRow) Valid() bool {
	return len(v.Errors) == 0
}

// ValidationReport aggregates per-row results.
type ValidationReport struct {
	Rows         []ValidatedRow    `json:"rows"`
	ValidCount   int               `json:"validCount"`
	InvalidCount int               `json:"invalidCount"`
	Errors       []ValidationError `json:"errors"`
}

// ImportPreview is what the upload dialog shows before committing.
type ImportPreview struct {
	Format          ImportFormat      `json:"format"`
	Rows            []ImportRow       `json:"rows"`
	TotalRows       int               `json:"totalRows"`
	ValidCount      int               `json:"validCount"`
	InvalidCount    int               `json:"invalidCount"`
	Errors          []ValidationError `json:"errors"`
	ErrorsTruncated bool              `json:"errorsTruncated"`
}

// ImportResult is the outcome of a committed import.
type ImportResult struct {
	Format          ImportFormat      `json:"format"`
	TotalRows       int               `json:"totalRows"`
	ImportedCount   int               `json:"importedCount"`
	SkippedCount    int               `json:"skippedCount"`
	Nodes           []RawNode         `json:"nodes"`
	Errors          []ValidationError `json:"errors"`
	ErrorsTruncated bool              `json:"errorsTruncated"`
}
