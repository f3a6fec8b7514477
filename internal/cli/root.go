package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/go-containerregistry/pkg/logs"
	"github.com/maxdollinger/burrow/internal"
)

// FrameworkExitCode is returned for failures of burrow itself, as opposed to
// a nonzero exit of the launched command.
const FrameworkExitCode = 125

// Root is the burrow command tree.
type Root struct {
	Quiet   bool       `short:"q" help:"Only log warnings and errors."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	LogJSON bool       `name:"log-json" help:"Log as JSON."`
	Run     RunCmd     `cmd:"" help:"Pull an image and run a command inside it."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

var RootCmd Root

func parserOptions(ctx context.Context) []kong.Option {
	return []kong.Option{
		kong.Name(internal.Name),
		kong.Description("Run a command inside a freshly pulled container image.\n\nThe image is fetched from the registry, unpacked into a private root and the command is started confined to it. The exit code of the command becomes burrow's exit code."),
		kong.UsageOnError(),
		kong.Vars{
			"userAgent": internal.UserAgent(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Exit(func(code int) {
			if code != 0 {
				code = FrameworkExitCode
			}
			os.Exit(code)
		}),
	}
}

// Execute parses arguments, configures logging and runs the selected command.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd, parserOptions(ctx)...)

	logger := newLogger(os.Stderr, RootCmd.Debug, RootCmd.Quiet, RootCmd.LogJSON)
	slog.SetDefault(logger)

	return kongCtx.Run(logger)
}

// newLogger builds the process logger and routes go-containerregistry's own
// loggers into it.
func newLogger(w io.Writer, debug, quiet, json bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logs.Warn = slog.NewLogLogger(handler, slog.LevelWarn)
	if debug {
		logs.Debug = slog.NewLogLogger(handler, slog.LevelDebug)
	}

	return slog.New(handler)
}
