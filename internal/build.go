package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Name of the binary, used in usage output and the default user agent.
const Name = "burrow"

const defaultUndefined = "(undefined)"

// Set at build time:
//
//	go build -ldflags "-X github.com/maxdollinger/burrow/internal.version=1.2.3 -X github.com/maxdollinger/burrow/internal.gitCommit=abc123"
var (
	version   = ""
	gitCommit = ""
)

// Version returns the build version without a leading "v", or "(undefined)".
func Version() string {
	v := strings.TrimSpace(version)
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return defaultUndefined
	}
	return c
}

// VersionString formats "<version> <commit> [<os>/<arch>]".
func VersionString() string {
	return fmt.Sprintf("%s %s [%s/%s]", Version(), GitCommit(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with every registry request.
func UserAgent() string {
	v := strings.TrimSpace(version)
	if v == "" {
		return Name
	}
	return Name + "/" + Version()
}
