// Package config provides build information for blazewatch.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  platform(),
		UserAgent: UserAgent(),
	}
}

// VersionString returns the one-line form printed by the version command.
func VersionString() string {
	return fmt.Sprintf("blazewatch %s (%s) built at %s with %s %s",
		ShortVersionString(), shortCommit(), BuildTime, runtime.Version(), platform())
}

// ShortVersionString returns the version without a leading "v".
func ShortVersionString() string {
	return strings.TrimPrefix(Version, "v")
}

// UserAgent is sent with every dashboard request so server logs can tell
// console sessions apart from browser tabs.
func UserAgent() string {
	return fmt.Sprintf("blazewatch/%s (%s)", ShortVersionString(), platform())
}

func platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
