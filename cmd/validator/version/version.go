// Package version exposes the build version reported by the /version
// endpoint.
package version

import "runtime/debug"

// Version is filled from module build info when available.
var Version = "dev"

func init() {
	if inf, ok := debug.ReadBuildInfo(); ok && inf.Main.Version != "" && inf.Main.Version != "(devel)" {
		Version = inf.Main.Version
	}
}
