// Package version carries build metadata injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set with -ldflags "-X github.com/telekom/smtp-notifier/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildDate is expected in RFC3339.
	BuildDate = "unknown"

	GoVersion = runtime.Version()
	Platform  = runtime.GOOS + "/" + runtime.GOARCH
)

// Name is the program name used in banners and the HTTP User-Agent.
const Name = "smtp-notifier"

// BuildInfo is served by /api/buildinfo and printed by the version command.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string    `json:"buildDate" yaml:"buildDate"`
	GoVersion string    `json:"goVersion" yaml:"goVersion"`
	Platform  string    `json:"platform" yaml:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
}

func GetBuildInfo() BuildInfo {
	var built time.Time
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		built = t
	}
	return BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  Platform,
		BuildTime: built,
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s, %s)", Name, b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}

// UserAgent identifies outgoing HTTP requests, e.g. image downloads.
func UserAgent() string {
	return Name + "/" + Version
}
