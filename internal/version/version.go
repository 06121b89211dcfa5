// Package version reports the build's VCS commit and build year, read from
// the Go module's embedded build info the same way go-ethereum's own
// internal/version package does.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// VCS holds the commit and timestamp embedded in the binary at build time.
type VCS struct {
	Commit string
	Date   string
}

// Info reads the VCS commit/time from runtime/debug.BuildInfo, if the
// binary was built with module information (i.e. not `go run`).
func Info() (VCS, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return VCS{}, false
	}
	var v VCS
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			v.Commit = s.Value
		case "vcs.time":
			v.Date = s.Value
		}
	}
	if v.Commit == "" {
		return VCS{}, false
	}
	return v, true
}

// WithCommit renders a short version string including the commit hash when
// available.
func WithCommit() string {
	v, ok := Info()
	if !ok || len(v.Commit) < 8 {
		return "dev"
	}
	return fmt.Sprintf("dev-%s", v.Commit[:8])
}

// BuildYear returns the build timestamp's year, falling back to the current
// year when build info is unavailable.
func BuildYear() int {
	v, ok := Info()
	if ok {
		if t, err := time.Parse(time.RFC3339, v.Date); err == nil {
			return t.Year()
		}
	}
	return time.Now().Year()
}
