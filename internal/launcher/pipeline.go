package launcher

import (
	"context"
	"log/slog"

	"github.com/maxdollinger/burrow/pkg/oci"
	"golang.org/x/sync/errgroup"
)

// unpack downloads and extracts layers into root in manifest order.
func (l *Launcher) unpack(ctx context.Context, logger *slog.Logger, repository string, token oci.Token, layers []oci.Layer, root string) error {
	if l.opts.Parallel > 1 && len(layers) > 1 {
		return l.unpackPrefetch(ctx, logger, repository, token, layers, root)
	}

	n := len(layers)
	for i, layer := range layers {
		blob, err := l.download(ctx, repository, token, i, n, layer)
		if err != nil {
			return err
		}
		if err := l.extract(ctx, logger, blob, root, i, n, layer); err != nil {
			return err
		}
	}

	return nil
}

// unpackPrefetch downloads up to Parallel blobs concurrently while a single
// consumer extracts them strictly in manifest order. The first failure
// cancels the remaining downloads.
func (l *Launcher) unpackPrefetch(ctx context.Context, logger *slog.Logger, repository string, token oci.Token, layers []oci.Layer, root string) error {
	n := len(layers)

	ready := make([]chan []byte, n)
	for i := range ready {
		ready[i] = make(chan []byte, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	// one slot is held by the extracting consumer
	g.SetLimit(l.opts.Parallel + 1)

	g.Go(func() error {
		for i, layer := range layers {
			var blob []byte
			select {
			case blob = <-ready[i]:
			case <-gctx.Done():
				return gctx.Err()
			}

			if err := l.extract(gctx, logger, blob, root, i, n, layer); err != nil {
				return err
			}
		}
		return nil
	})

	for i, layer := range layers {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			blob, err := l.download(gctx, repository, token, i, n, layer)
			if err != nil {
				return err
			}
			ready[i] <- blob
			return nil
		})
	}

	return g.Wait()
}
