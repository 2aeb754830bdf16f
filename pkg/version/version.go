package version

import "runtime/debug"

// Version is the current application version.
// This is a var (not const) so it can be overridden at build time via:
//
//	go build -ldflags "-X github.com/vanderheijden86/bimnav/pkg/version.Version=v1.2.3"
var Version = "v0.1.0-dev"

func init() {
	if Version != "v0.1.0-dev" {
		return
	}
	// go install records the module version in the build info.
	if info, ok := debug.ReadBuildInfo(); ok && fromModule(info.Main.Version) != "" {
		Version = fromModule(info.Main.Version)
	}
}

func fromModule(v string) string {
	if v == "" || v == "(devel)" {
		return ""
	}
	return v
}
