package models

// FilterState is the table/map filter selection.
type FilterState struct {
	Statuses  []string `json:"statuses"`
	HealthMin int      `json:"healthMin"`
	HealthMax int      `json:"healthMax"`
}

// DefaultFilterState selects everything.
func DefaultFilterState() FilterState {
	return FilterState{
		Statuses:  append([]string(nil), AllStatuses...),
		HealthMin: 0,
		HealthMax: 100,
	}
}
