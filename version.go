package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build metadata, overridden with -ldflags "-X main.Version=..." in release builds
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// buildInfo describes the running binary
type buildInfo struct {
	version  string
	revision string
	modified bool
	built    string
	goVer    string
}

// currentBuild merges ldflags values with the VCS stamp the Go toolchain embeds
func currentBuild() buildInfo {
	info := buildInfo{
		version:  Version,
		revision: GitCommit,
		built:    BuildTime,
		goVer:    runtime.Version(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.revision == "" && len(s.Value) >= 7 {
				info.revision = s.Value[:7]
			}
		case "vcs.time":
			if info.built == "" {
				info.built = s.Value
			}
		case "vcs.modified":
			info.modified = s.Value == "true"
		}
	}
	return info
}

// GetVersionInfo returns a one-line version string for logs
func GetVersionInfo() string {
	b := currentBuild()
	return fmt.Sprintf("royal v%s (%s)", b.version, b.commit())
}

// GetBuildInfo returns the multi-line report printed by "royal version"
func GetBuildInfo() string {
	b := currentBuild()
	built := b.built
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("royal v%s\nCommit: %s\nBuilt: %s\nGo: %s", b.version, b.commit(), built, b.goVer)
}

func (b buildInfo) commit() string {
	if b.revision == "" {
		return "unknown"
	}
	if b.modified {
		return b.revision + "-dirty"
	}
	return b.revision
}
