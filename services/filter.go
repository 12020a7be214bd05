package services

import (
	"pnodedash/models"
)

// Filterable is any record the table and map filters can narrow.
type Filterable interface {
	GetStatus() string
	GetHealthScore() int
}

// IsDefault reports whether f selects everything: every status and the
// exact 0-100 range.
func IsDefault(f models.FilterState) bool {
	return coversAllStatuses(f.Statuses) && f.HealthMin == 0 && f.HealthMax == 100
}

func coversAllStatuses(statuses []string) bool {
	for _, want := range models.AllStatuses {
		found := false
		for _, s := range statuses {
			if s == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(statuses) == len(models.AllStatuses)
}

// FilterByStatus keeps records whose status is in statuses. An empty
// selection or one naming every status returns a copy of the input.
func FilterByStatus[T Filterable](items []T, statuses []string) []T {
	if len(statuses) == 0 || coversAllStatuses(statuses) {
		return append([]T(nil), items...)
	}

	allowed := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, ok := allowed[it.GetStatus()]; ok {
			out = append(out, it)
		}
	}
	return out
}

// FilterByHealthRange keeps records with lo <= score <= hi.
func FilterByHealthRange[T Filterable](items []T, lo, hi int) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if s := it.GetHealthScore(); s >= lo && s <= hi {
			out = append(out, it)
		}
	}
	return out
}

// ApplyFilters combines the status and health filters. The input is never
// modified; the result is always a new slice.
func ApplyFilters[T Filterable](items []T, f models.FilterState) []T {
	out := FilterByStatus(items, f.Statuses)
	if f.HealthMin == 0 && f.HealthMax == 100 {
		return out
	}
	return FilterByHealthRange(out, f.HealthMin, f.HealthMax)
}
