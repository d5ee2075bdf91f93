package version

import (
	"runtime/debug"
	"testing"
)

func buildInfo(mainVersion string, settings ...string) *debug.BuildInfo {
	info := &debug.BuildInfo{Main: debug.Module{Path: "github.com/muurk/rmlink", Version: mainVersion}}
	for i := 0; i+1 < len(settings); i += 2 {
		info.Settings = append(info.Settings, debug.BuildSetting{Key: settings[i], Value: settings[i+1]})
	}
	return info
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		commit      string
		info        *debug.BuildInfo
		wantVersion string
		wantCommit  string
	}{
		{
			name:        "ldflags win",
			version:     "v1.2.3",
			commit:      "abc1234",
			info:        buildInfo("v0.9.0", "vcs.revision", "ffffffffffff"),
			wantVersion: "v1.2.3",
			wantCommit:  "abc1234",
		},
		{
			name:        "go install",
			info:        buildInfo("v0.4.1"),
			wantVersion: "v0.4.1",
			wantCommit:  "unknown",
		},
		{
			name: "checkout build",
			info: buildInfo("(devel)",
				"vcs.revision", "0123456789abcdef",
				"vcs.modified", "true",
				"vcs.time", "2026-03-14T09:30:00Z"),
			wantVersion: "dev-20260314",
			wantCommit:  "0123456-dirty",
		},
		{
			name:        "no build info",
			wantVersion: "dev",
			wantCommit:  "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := resolve(tt.version, tt.commit, tt.info)
			if v != tt.wantVersion || c != tt.wantCommit {
				t.Errorf("resolve() = %q, %q, want %q, %q", v, c, tt.wantVersion, tt.wantCommit)
			}
		})
	}
}
