package main

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/mod/semver"
)

var (
	version = "dev"
	commit  = "none"
)

// getVersion returns the ldflags-injected version if it's a valid semver
// string (e.g. "v1.4.2"), falling back to a short VCS revision so a build
// with a malformed -ldflags value never masquerades as a real release.
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

func userAgent() string {
	return fmt.Sprintf("s3put/%s", getVersion())
}
