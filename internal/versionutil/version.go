// Package versionutil normalizes build version strings.
package versionutil

import "strings"

// Dev is the version of binaries built without -ldflags.
const Dev = "dev"

// EnsureVPrefix returns s with a leading "v" if it doesn't already have one.
func EnsureVPrefix(s string) string {
	if s != "" && !strings.HasPrefix(s, "v") {
		return "v" + s
	}
	return s
}

// Resolve returns the display version for build. A dev build takes the
// output of describe (usually git describe) with a "-dev" suffix when it
// succeeds. Release versions get a "v" prefix.
func Resolve(build string, describe func() (string, error)) string {
	build = strings.TrimSpace(build)
	if build == "" || build == Dev {
		if describe != nil {
			if desc, err := describe(); err == nil {
				if v := strings.TrimSpace(desc); v != "" {
					return v + "-" + Dev
				}
			}
		}
		return Dev
	}
	return EnsureVPrefix(build)
}
