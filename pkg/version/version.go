// Package version exposes build metadata for the health endpoint, logs and
// user-agent strings.
//
// The commit comes from -ldflags when set (container builds have no .git),
// then from the VCS stamp in debug.BuildInfo, and is "dev" otherwise.
package version

import (
	"runtime"
	"runtime/debug"
)

// AppName is the application name used in version strings.
const AppName = "finalstream"

// gitCommitOverride is set with
// -ldflags "-X github.com/codeready-toolchain/finalstream/pkg/version.gitCommitOverride=<sha>".
var gitCommitOverride string

// Info is the build metadata of the running binary.
type Info struct {
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

var info = readInfo(gitCommitOverride, debug.ReadBuildInfo)

// GitCommit is the short commit hash, or "dev".
var GitCommit = info.Commit

// Get returns the build metadata.
func Get() Info {
	return info
}

// Full returns "finalstream/<commit>", with a "-dirty" suffix for builds
// from a modified tree.
func Full() string {
	v := AppName + "/" + info.Commit
	if info.Modified {
		v += "-dirty"
	}
	return v
}

func readInfo(override string, read func() (*debug.BuildInfo, bool)) Info {
	out := Info{Commit: "dev", GoVersion: runtime.Version()}
	if override != "" {
		out.Commit = shortCommit(override)
		return out
	}
	bi, ok := read()
	if !ok {
		return out
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if s.Value != "" {
				out.Commit = shortCommit(s.Value)
			}
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}
	return out
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
