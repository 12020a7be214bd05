package utils

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"pnodedash/models"
)

// NoVersion is what GetLatestVersion returns for an empty node list.
const NoVersion = "0.0.0"

// VersionConfig holds the upgrade thresholds. CurrentStable is normally the
// latest version seen in the snapshot.
type VersionConfig struct {
	CurrentStable string
	MinSupported  string
	Deprecated    string
}

var DefaultVersionConfig = VersionConfig{
	CurrentStable: "0.8.0",
	MinSupported:  "0.7.3",
	Deprecated:    "0.7.2",
}

// ParseVersion splits a dotted version into numeric components. A leading
// "v" or "V" is dropped; components that are not integers become 0.
func ParseVersion(s string) []int {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

// CompareVersions returns 1 if a > b, -1 if a < b and 0 if they are equal.
// Malformed input never fails; it degrades to zero components.
func CompareVersions(a, b string) int {
	if va, vb, ok := releaseVersions(a, b); ok {
		return va.Compare(vb)
	}

	pa, pb := ParseVersion(a), ParseVersion(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

// releaseVersions parses both strings with go-version when they are plain
// release versions. Prerelease or metadata suffixes fall through to the
// component comparison so that "1.0.0-beta" equals "1.0.0".
func releaseVersions(a, b string) (*version.Version, *version.Version, bool) {
	va, err := version.NewVersion(strings.TrimSpace(a))
	if err != nil || va.Prerelease() != "" || va.Metadata() != "" {
		return nil, nil, false
	}
	vb, err := version.NewVersion(strings.TrimSpace(b))
	if err != nil || vb.Prerelease() != "" || vb.Metadata() != "" {
		return nil, nil, false
	}
	return va, vb, true
}

// GetLatestVersion returns the highest version in the list, or NoVersion
// when the list is empty. The first of several equal versions wins.
func GetLatestVersion(nodes []models.RawNode) string {
	latest := NoVersion
	for i := range nodes {
		if CompareVersions(nodes[i].Version, latest) > 0 {
			latest = nodes[i].Version
		}
	}
	return latest
}

// CheckVersionStatus determines if a node version needs upgrading
func CheckVersionStatus(nodeVersion string, config *VersionConfig) (status string, needsUpgrade bool, severity string) {
	if config == nil {
		config = &DefaultVersionConfig
	}

	if strings.TrimSpace(nodeVersion) == "" {
		return "unknown", false, "info"
	}

	if config.Deprecated != "" && CompareVersions(nodeVersion, config.Deprecated) < 0 {
		return "deprecated", true, "critical"
	}

	if config.MinSupported != "" && CompareVersions(nodeVersion, config.MinSupported) < 0 {
		return "outdated", true, "warning"
	}

	if CompareVersions(nodeVersion, config.CurrentStable) < 0 {
		return "outdated", true, "info"
	}

	return "current", false, "none"
}

// GetUpgradeMessage returns a human-readable upgrade message
func GetUpgradeMessage(nodeVersion string, config *VersionConfig) string {
	if config == nil {
		config = &DefaultVersionConfig
	}

	_, needsUpgrade, severity := CheckVersionStatus(nodeVersion, config)
	if !needsUpgrade {
		return ""
	}

	switch severity {
	case "critical":
		return "CRITICAL: This version is deprecated and no longer supported. Upgrade to " + config.CurrentStable + " immediately."
	case "warning":
		return "WARNING: This version is outdated. Please upgrade to " + config.CurrentStable + " soon."
	case "info":
		return "INFO: A newer version " + config.CurrentStable + " is available."
	}

	return ""
}
