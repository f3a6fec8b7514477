package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dustin/go-humanize"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
)

const (
	DefaultAuthURL     = "https://auth.docker.io/token"
	DefaultService     = "registry.docker.io"
	DefaultRegistryURL = "https://registry.hub.docker.com"

	// ManifestMediaType is the only manifest schema the client accepts.
	ManifestMediaType = types.DockerManifestSchema2

	maxTokenResponse = 1 << 20
)

// Options locates the token endpoint and the registry API.
type Options struct {
	AuthURL     string // token endpoint, e.g. https://auth.docker.io/token
	Service     string // value of the service query parameter
	RegistryURL string // base URL serving /v2/
}

func DefaultOptions() Options {
	return Options{
		AuthURL:     DefaultAuthURL,
		Service:     DefaultService,
		RegistryURL: DefaultRegistryURL,
	}
}

// Client talks the registry v2 pull protocol over an injected http.Client.
// It keeps no state between calls: every call is a fresh request and
// nothing is cached or retried.
type Client struct {
	http   *http.Client
	opts   Options
	logger *slog.Logger
}

// NewClient creates a registry client. Empty option fields fall back to the
// Docker Hub defaults.
func NewClient(httpClient *http.Client, opts Options) *Client {
	defaults := DefaultOptions()
	if opts.AuthURL == "" {
		opts.AuthURL = defaults.AuthURL
	}
	if opts.Service == "" {
		opts.Service = defaults.Service
	}
	if opts.RegistryURL == "" {
		opts.RegistryURL = defaults.RegistryURL
	}

	return &Client{
		http:   httpClient,
		opts:   opts,
		logger: slog.Default(),
	}
}

// WithLogger replaces the client's logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

func (c *Client) Info() string {
	return c.opts.RegistryURL
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// RequestToken obtains an anonymous bearer token allowed to pull repository.
func (c *Client) RequestToken(ctx context.Context, repository string) (Token, error) {
	fail := func(err error) (Token, error) {
		return Token{}, &AuthError{Repository: repository, Err: err}
	}

	u, err := url.Parse(c.opts.AuthURL)
	if err != nil {
		return fail(fmt.Errorf("parse auth url: %w", err))
	}
	q := u.Query()
	q.Set("service", c.opts.Service)
	q.Set("scope", pullScope(repository))
	u.RawQuery = q.Encode()

	c.logger.DebugContext(ctx, "requesting pull token", "url", u.String())

	resp, err := c.get(ctx, u.String(), nil)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return fail(err)
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenResponse)).Decode(&body); err != nil {
		return fail(fmt.Errorf("decode token response: %w", err))
	}

	value := body.Token
	if value == "" {
		value = body.AccessToken
	}
	if value == "" {
		return fail(ErrMissingToken)
	}

	return Token{Value: value}, nil
}

// GetManifest fetches the v2 schema manifest for ref. A manifest declaring
// any other media type is rejected; there is no fallback negotiation.
func (c *Client) GetManifest(ctx context.Context, ref Reference, token Token) (*Manifest, error) {
	fail := func(err error) (*Manifest, error) {
		return nil, &ManifestError{Repository: ref.Repository, Tag: ref.Tag, Err: err}
	}

	u, err := url.JoinPath(c.opts.RegistryURL, "v2", "library", ref.Repository, "manifests", ref.Tag)
	if err != nil {
		return fail(fmt.Errorf("build manifest url: %w", err))
	}

	c.logger.DebugContext(ctx, "fetching manifest", "url", u)

	resp, err := c.get(ctx, u, &token, string(ManifestMediaType))
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return fail(err)
	}

	m, err := v1.ParseManifest(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("decode manifest: %w", err))
	}

	if m.MediaType != ManifestMediaType {
		return fail(fmt.Errorf("%w: got %q, want %q", ErrMediaTypeMismatch, m.MediaType, ManifestMediaType))
	}

	layers := make([]Layer, len(m.Layers))
	for i, desc := range m.Layers {
		dgst, err := digest.Parse(desc.Digest.String())
		if err != nil {
			return fail(fmt.Errorf("layer %d digest: %w", i, err))
		}
		layers[i] = Layer{
			Digest:    dgst,
			Size:      desc.Size,
			MediaType: string(desc.MediaType),
		}
	}

	return &Manifest{
		Repository: ref.Repository,
		Tag:        ref.Tag,
		MediaType:  string(m.MediaType),
		Layers:     layers,
	}, nil
}

// GetBlob downloads one blob completely into memory. A failure at any point,
// including mid-stream, discards everything read so far.
func (c *Client) GetBlob(ctx context.Context, repository string, dgst digest.Digest, token Token) ([]byte, error) {
	fail := func(err error) ([]byte, error) {
		return nil, &BlobDownloadError{Repository: repository, Digest: dgst, Err: err}
	}

	u, err := url.JoinPath(c.opts.RegistryURL, "v2", "library", repository, "blobs", dgst.String())
	if err != nil {
		return fail(fmt.Errorf("build blob url: %w", err))
	}

	resp, err := c.get(ctx, u, &token)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return fail(err)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fail(fmt.Errorf("read blob body: %w", err))
	}

	c.logger.DebugContext(ctx, "blob downloaded",
		"digest", dgst.String(),
		"size", humanize.Bytes(uint64(buf.Len())))

	return buf.Bytes(), nil
}

// get issues a GET with optional bearer authorization and Accept header.
func (c *Client) get(ctx context.Context, u string, token *Token, accept ...string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token != nil {
		req.Header.Set("Authorization", "Bearer "+token.Value)
	}
	for _, a := range accept {
		req.Header.Add("Accept", a)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	return resp, nil
}
