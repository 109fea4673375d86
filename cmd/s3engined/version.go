package main

import (
	"runtime/debug"

	"golang.org/x/mod/semver"
)

var version = "dev"

// getVersion returns the ldflags-injected version if it's a valid semver
// string, falling back to a short VCS revision otherwise; see
// cmd/s3put/version.go for the same logic with commentary.
func getVersion() string {
	if version != "dev" && semver.IsValid(version) {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return "dev"
}
