package launcher

import (
	"log/slog"
	"net/http"

	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/maxdollinger/burrow/pkg/fs"
	"github.com/maxdollinger/burrow/pkg/isolate"
	"github.com/maxdollinger/burrow/pkg/oci"
	"github.com/maxdollinger/burrow/pkg/runner"
)

// Config is everything needed to build a production launcher.
type Config struct {
	Registry  oci.Options
	WorkDir   string
	Parallel  int
	Whiteouts bool
	UserAgent string
	Logger    *slog.Logger
}

// New builds a launcher talking to a real registry and confining with the
// platform isolator.
func New(cfg Config) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	source := oci.NewClient(NewHTTPClient(cfg.UserAgent), cfg.Registry).WithLogger(logger)

	extractor := fs.NewExtractor().WithLogger(logger)
	extractor.Whiteouts = cfg.Whiteouts

	opts := Options{
		WorkDir:  cfg.WorkDir,
		Parallel: cfg.Parallel,
	}

	isolator := isolate.New()
	r := runner.New().WithLogger(logger)
	r.Isolation = isolator

	return NewWithDeps(source, extractor, isolator, r, opts).WithLogger(logger)
}

// NewHTTPClient returns the single HTTP client a run uses. Requests carry
// userAgent and are traced through go-containerregistry's debug logger.
// There is no client timeout; cancellation comes from the request context.
func NewHTTPClient(userAgent string) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()

	var rt http.RoundTripper = transport.NewLogger(base)
	if userAgent != "" {
		rt = transport.NewUserAgent(rt, userAgent)
	}

	return &http.Client{Transport: rt}
}
