package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 0

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 3

	// AppPatch defines the application patch for this binary.
	AppPatch uint = 0

	// AppPreRelease may hold a semver pre-release tag such as "beta".
	AppPreRelease = ""
)

var (
	// Commit is set at link time with -ldflags "-X ...build.Commit=...".
	Commit string

	// CommitHash is the vcs revision recorded by the Go toolchain, used
	// when Commit was not set at link time.
	CommitHash string

	// GoVersion is the toolchain that built the binary.
	GoVersion string

	// RawTags holds the comma separated build tags, if any.
	RawTags string
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			CommitHash = setting.Value
		case "-tags":
			RawTags = setting.Value
		}
	}
}

// Version returns the semver string of the binary.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if AppPreRelease != "" {
		version += "-" + AppPreRelease
	}

	return version
}

// Tags returns the build tags the binary was compiled with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}
