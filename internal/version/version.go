// Package version reports the podnotes build version.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is the current release version. Override with
// -ldflags "-X github.com/gobeyondidentity/podnotes/internal/version.Version=1.2.3".
var Version = "dev"

// String returns the version with a single 'v' prefix for display.
func String() string {
	v := strings.TrimPrefix(Version, "v")
	return "v" + v
}

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
	GoVersion string `json:"go" yaml:"go"`
}

// Get returns build details, using VCS stamps from the Go toolchain when
// present.
func Get() Info {
	info := Info{Version: String()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.Revision = s.Value
			if len(info.Revision) > 12 {
				info.Revision = info.Revision[:12]
			}
		}
	}
	return info
}
