package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/alan/internal/metrics"
	"github.com/roach88/alan/internal/runtime"
)

// runLoop drives rt until it stops, alongside the optional metrics server.
//
// SIGINT/SIGTERM cancel the loop and interrupt any script that is still
// running. The metrics server shuts down when the loop ends.
func runLoop(ctx context.Context, rt *runtime.Runtime, srv *metrics.Server, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		defer close(loopDone)
		return rt.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("stopping runtime", "runtime_id", rt.ID(), "cause", context.Cause(gctx))
			rt.Interrupt("interrupted")
		case <-loopDone:
		}
		return nil
	})

	if srv != nil {
		srvCtx, cancelSrv := context.WithCancel(gctx)
		defer cancelSrv()

		g.Go(func() error {
			return srv.Serve(srvCtx)
		})
		g.Go(func() error {
			<-loopDone
			cancelSrv()
			return nil
		})
	}

	return g.Wait()
}

// cancelled reports whether err only means the run was interrupted by a
// signal or the caller's context.
func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
