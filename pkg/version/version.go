// Package version derives the server version from embedded build metadata.
package version

import "runtime/debug"

// AppName prefixes version strings and User-Agent headers.
const AppName = "parley"

// commit is the short VCS revision, "dev" outside a git build.
var commit = resolveCommit()

func resolveCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "parley/<commit>" for User-Agent headers and startup logs.
func Full() string {
	return AppName + "/" + commit
}
