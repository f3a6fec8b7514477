package oci

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// DefaultTag is used when an image reference carries no tag
const DefaultTag = "latest"

// Reference identifies an image in the registry's library namespace.
type Reference struct {
	Repository string // e.g. "alpine"
	Tag        string // e.g. "3.20", defaults to "latest"
}

// ParseReference splits image into repository and tag at the first ':'.
// ref can be:
//   - "alpine" (tag defaults to latest)
//   - "alpine:3.20"
//
// The result is checked with go-containerregistry's tag grammar so illegal
// repository or tag characters are rejected before any network call.
func ParseReference(image string) (Reference, error) {
	repo, tag, hasTag := strings.Cut(image, ":")
	if repo == "" {
		return Reference{}, fmt.Errorf("%w: %q has no repository", ErrInvalidReference, image)
	}
	if !hasTag {
		tag = DefaultTag
	}
	if tag == "" {
		return Reference{}, fmt.Errorf("%w: %q has an empty tag", ErrInvalidReference, image)
	}

	if _, err := name.NewTag("library/" + repo + ":" + tag); err != nil {
		return Reference{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	return Reference{Repository: repo, Tag: tag}, nil
}

func (r Reference) String() string {
	return r.Repository + ":" + r.Tag
}

// pullScope is the token scope granting pull access to the repository
func pullScope(repository string) string {
	return "repository:library/" + repository + ":pull"
}
