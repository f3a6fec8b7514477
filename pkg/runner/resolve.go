package runner

import "path"

// Policy decides where the executable lives inside the confined root.
type Policy int

const (
	// PolicyImage runs the command path as shipped by the image.
	PolicyImage Policy = iota
	// PolicyCopied runs an executable copied into the top level of the root.
	PolicyCopied
)

func (p Policy) String() string {
	switch p {
	case PolicyImage:
		return "image"
	case PolicyCopied:
		return "copied"
	default:
		return "unknown"
	}
}

// Resolve returns the in-root path to spawn for execPath. Paths are always
// absolute within the root; relative image paths are anchored at "/".
func Resolve(policy Policy, execPath string) string {
	if policy == PolicyCopied {
		return "/" + path.Base(execPath)
	}
	return path.Clean("/" + execPath)
}
