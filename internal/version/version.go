// Package version reports the rmlink build version.
//
// Release builds set Version and Commit with ldflags:
//
//	go build -ldflags="-X github.com/muurk/rmlink/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/rmlink/internal/version.Commit=abc1234"
//
// Otherwise they are taken from the module build info: the module version for
// 'go install ...@v1.2.3' builds, the VCS stamp for builds from a checkout.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the short git commit hash
	Commit = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		info = nil
	}
	Version, Commit = resolve(Version, Commit, info)
}

// resolve fills in whatever ldflags left empty from build info
func resolve(version, commit string, info *debug.BuildInfo) (string, string) {
	var revision, modified, stamp string
	if info != nil {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				modified = s.Value
			case "vcs.time":
				stamp = s.Value
			}
		}
	}

	if commit == "" && revision != "" {
		commit = revision
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if modified == "true" {
			commit += "-dirty"
		}
	}
	if commit == "" {
		commit = "unknown"
	}

	if version == "" && info != nil && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	if version == "" {
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			version = "dev-" + t.UTC().Format("20060102")
		}
	}
	if version == "" {
		version = "dev"
	}
	return version, commit
}

// Full returns the version with the commit, as printed by the version commands
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
