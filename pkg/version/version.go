// Package version holds build metadata of the fillspc binary.
package version

import (
	"runtime/debug"
	"sync"
)

// Build metadata, set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var initOnce sync.Once

// InitBinaryVersion fills unset metadata from the embedded build info, so
// `go install` builds report their module version and VCS revision.
func InitBinaryVersion() {
	initOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		apply(info)
	})
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		}
	}
}

// String formats the metadata for `fillspc version`.
func String() string {
	return "fillspc " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
