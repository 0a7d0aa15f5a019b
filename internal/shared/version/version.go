// Package version carries the build version and parses node version strings.
package version

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Set at build time with -ldflags "-X ...version.Version=v1.2.3".
var (
	Version = "dev"
	Commit  = ""
)

// String returns the build version with the commit when known.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}

// Normalize ensures version string has "v" prefix for semver compatibility.
// Examples: "1.2.3" -> "v1.2.3", "v1.2.3" -> "v1.2.3"
func Normalize(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

// ParseMajor extracts the major version from strings such as "3", "3.7.8"
// or "v4.0.0-beta.1". It reports false for anything that is not semver.
func ParseMajor(raw string) (int, bool) {
	v := Normalize(raw)
	if !semver.IsValid(v) {
		return 0, false
	}
	major, err := strconv.Atoi(strings.TrimPrefix(semver.Major(v), "v"))
	if err != nil {
		return 0, false
	}
	return major, true
}
