package oci

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// Source abstracts the registry an image is pulled from
type Source interface {
	RequestToken(ctx context.Context, repository string) (Token, error)
	GetManifest(ctx context.Context, ref Reference, token Token) (*Manifest, error)
	GetBlob(ctx context.Context, repository string, dgst digest.Digest, token Token) ([]byte, error)
	Info() string
}
