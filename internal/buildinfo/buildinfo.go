// Package buildinfo carries version stamps set with -ldflags at build time.
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the version stamps. Commit falls back to the VCS revision
// recorded by the Go toolchain.
func Info() map[string]string {
	commit := Commit
	goVersion := ""
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
		if commit == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	return map[string]string{
		"version":   Version,
		"commit":    commit,
		"builtAt":   BuiltAt,
		"goVersion": goVersion,
	}
}

// String renders Info on one line for -version flags.
func String() string {
	i := Info()
	s := "droc " + i["version"]
	if i["commit"] != "" {
		s += " (" + i["commit"] + ")"
	}
	if i["goVersion"] != "" {
		s += " " + i["goVersion"]
	}
	return s
}
