package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pnodedash/models"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"1.2.3", []int{1, 2, 3}},
		{"v0.8.0", []int{0, 8, 0}},
		{"V2.1", []int{2, 1}},
		{"1.x.3", []int{1, 0, 3}},
		{"", []int{0}},
		{"1.2.3.4.5", []int{1, 2, 3, 4, 5}},
		{"1.0.0-beta", []int{1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVersion(tt.in))
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"0.9.9", "1.0.0", -1},
		{"1.0", "1.0.0", 0},
		{"1.0.0.1", "1.0", 1},
		{"v1.2.0", "1.2", 0},
		{"V1.3", "1.2.9", 1},
		{"garbage", "0.0.0", 0},
		{"1.10.0", "1.9.0", 1},
		{"1.0.0-beta", "1.0.0", 0},
		{"0.8.0", "0.7.3", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
		})
	}
}

func TestCompareVersions_Antisymmetric(t *testing.T) {
	versions := []string{
		"", "0", "0.0.0", "1", "1.0", "1.0.0", "v1.0.1", "1.2.3", "1.2.3-rc1",
		"2.0", "10.0.0", "abc", "1..2", "0.8.0", "0.7.2", "V0.7.3", "1.2.3.4",
	}

	for _, a := range versions {
		assert.Equal(t, 0, CompareVersions(a, a), "reflexive for %q", a)
		for _, b := range versions {
			assert.Equal(t, -CompareVersions(b, a), CompareVersions(a, b), "%q vs %q", a, b)
		}
	}
}

func TestGetLatestVersion(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "0.0.0", GetLatestVersion(nil))
	})

	t.Run("highest wins", func(t *testing.T) {
		nodes := []models.RawNode{
			{Version: "0.7.3"}, {Version: "0.8.1"}, {Version: "0.8.0"}, {Version: "0.10.0"},
		}
		assert.Equal(t, "0.10.0", GetLatestVersion(nodes))
	})

	t.Run("first of equal versions wins", func(t *testing.T) {
		nodes := []models.RawNode{
			{Version: "1.0"}, {Version: "1.0.0"}, {Version: "v1.0.0"},
		}
		assert.Equal(t, "1.0", GetLatestVersion(nodes))
	})
}

func TestCheckVersionStatus(t *testing.T) {
	cfg := &VersionConfig{CurrentStable: "0.8.0", MinSupported: "0.7.3", Deprecated: "0.7.2"}

	tests := []struct {
		version  string
		status   string
		upgrade  bool
		severity string
	}{
		{"0.8.0", "current", false, "none"},
		{"0.9.0", "current", false, "none"},
		{"0.7.5", "outdated", true, "info"},
		{"0.7.2", "outdated", true, "warning"},
		{"0.6.0", "deprecated", true, "critical"},
		{"", "unknown", false, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			status, upgrade, severity := CheckVersionStatus(tt.version, cfg)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.upgrade, upgrade)
			assert.Equal(t, tt.severity, severity)
		})
	}

	assert.Contains(t, GetUpgradeMessage("0.6.0", cfg), "CRITICAL")
	assert.Empty(t, GetUpgradeMessage("0.8.0", cfg))
}
