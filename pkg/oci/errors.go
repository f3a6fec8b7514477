package oci

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

var (
	ErrInvalidReference  = errors.New("invalid image reference")
	ErrMissingToken      = errors.New("token response carries no token")
	ErrMediaTypeMismatch = errors.New("unexpected manifest media type")
)

// AuthError reports a failure to obtain a pull token.
type AuthError struct {
	Repository string
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("request pull token for %s: %v", e.Repository, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ManifestError reports a failure to fetch or accept a manifest,
// including a media type other than the supported schema.
type ManifestError struct {
	Repository string
	Tag        string
	Err        error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s:%s: %v", e.Repository, e.Tag, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// BlobDownloadError reports a failed or truncated layer download.
type BlobDownloadError struct {
	Repository string
	Digest     digest.Digest
	Err        error
}

func (e *BlobDownloadError) Error() string {
	return fmt.Sprintf("blob %s@%s: %v", e.Repository, e.Digest, e.Err)
}

func (e *BlobDownloadError) Unwrap() error { return e.Err }
