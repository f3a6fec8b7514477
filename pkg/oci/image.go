package oci

import (
	"github.com/opencontainers/go-digest"
)

// Token is a bearer credential scoped to pulling one repository.
// It lives for a single run and is never refreshed.
type Token struct {
	Value string
}

// Manifest is the resolved v2 schema manifest of one image tag
type Manifest struct {
	Repository string
	Tag        string
	MediaType  string
	// Layers in stacking order, exactly as listed by the registry.
	Layers []Layer
}

// Layer references one compressed filesystem layer blob.
// The digest is used verbatim as the blob identifier; the downloaded
// bytes are not checked against it.
type Layer struct {
	Digest    digest.Digest
	Size      int64
	MediaType string
}
