package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maxdollinger/burrow/internal/launcher"
	"github.com/maxdollinger/burrow/pkg/oci"
	"github.com/maxdollinger/burrow/pkg/runner"
)

// RunCmd is 'burrow run'.
type RunCmd struct {
	AuthURL     string `name:"auth-url" env:"BURROW_AUTH_URL" default:"https://auth.docker.io/token" help:"Token endpoint." placeholder:"URL"`
	Service     string `env:"BURROW_SERVICE" default:"registry.docker.io" help:"Service name sent to the token endpoint."`
	RegistryURL string `name:"registry-url" env:"BURROW_REGISTRY_URL" default:"https://registry.hub.docker.com" help:"Registry base URL." placeholder:"URL"`
	WorkDir     string `name:"work-dir" env:"BURROW_WORK_DIR" help:"Directory for the temporary image root (default: system temp dir)." placeholder:"DIR"`
	Parallel    int    `env:"BURROW_PARALLEL" default:"1" help:"Number of layers downloaded concurrently."`
	Copy        bool   `help:"Copy the host executable named by COMMAND into the root and run the copy."`
	Whiteouts   bool   `help:"Apply layer whiteout markers as deletions."`
	UserAgent   string `name:"user-agent" env:"BURROW_USER_AGENT" default:"${userAgent}" help:"User agent for registry requests."`

	Image   string   `arg:"" help:"Image as repository[:tag] in the library namespace, e.g. alpine:3.20."`
	Command []string `arg:"" passthrough:"" help:"Command and arguments to run inside the image."`
}

// ExitError carries a nonzero exit code of the launched command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// exitErrorFor mirrors the command's outcome. Exits by signal are not
// reported.
func exitErrorFor(outcome runner.ExitOutcome) error {
	if outcome.Success() {
		return nil
	}
	return &ExitError{Code: outcome.Code}
}

// ExitCode maps the error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return FrameworkExitCode
}

// Run executes the run command.
func (c *RunCmd) Run(ctx context.Context, logger *slog.Logger) error {
	req, err := launcher.NewRequest(c.Image, c.Command[0], c.Command[1:])
	if err != nil {
		return err
	}
	req.CopyCommand = c.Copy

	l := launcher.New(c.config(logger))

	result, err := l.RunOnce(ctx, req)
	if err != nil {
		return err
	}

	return exitErrorFor(result.Outcome)
}

func (c *RunCmd) config(logger *slog.Logger) launcher.Config {
	return launcher.Config{
		Registry: oci.Options{
			AuthURL:     c.AuthURL,
			Service:     c.Service,
			RegistryURL: c.RegistryURL,
		},
		WorkDir:   c.WorkDir,
		Parallel:  c.Parallel,
		Whiteouts: c.Whiteouts,
		UserAgent: c.UserAgent,
		Logger:    logger,
	}
}
