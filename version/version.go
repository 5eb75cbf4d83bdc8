// Package version reports how the courier binary was built.
//
// Release builds stamp the variables below with
//
//	-ldflags "-X github.com/teranos/courier/version.Version=v1.4.0 -X ..."
//
// Anything left unstamped is filled from the VCS data the Go toolchain
// embeds, so `go install` builds still report their commit.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set at build time via ldflags.
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := readBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String returns e.g. "courier v1.4.0 (commit 3f2a9c1, built 2026-10-19T08:00:00Z)".
func (i Info) String() string {
	commit := i.Short()
	if i.Modified {
		commit += "+dirty"
	}
	return "courier " + i.Version + " (commit " + commit + ", built " + i.BuildTime + ")"
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

// UserAgent is sent on outbound calls to the broker.
func (i Info) UserAgent() string {
	return "courier/" + i.Version
}
