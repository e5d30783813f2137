package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New returns the build info of the running binary. Values set at link time take precedence,
// unset ones are filled from the VCS stamp the Go toolchain embeds.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate, GoVersion: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" || i.CommitHash == "n/a" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" || i.BuildDate == "<unknown>" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

// String returns the build into as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s with %s", i.Version, i.CommitHash, i.BuildDate, i.GoVersion)
}
