// Package graceful blocks a daemon until it is told to stop, then drives an
// orderly shutdown of its components.
package graceful

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const stopTimeout = 10 * time.Second

// Wait blocks until SIGINT/SIGTERM arrives or ctx is cancelled, then runs
// every stop function under a shared timeout.
func Wait(ctx context.Context, logger logrus.FieldLogger, stops ...func(context.Context) error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	for _, stop := range stops {
		if err := stop(stopCtx); err != nil {
			logger.WithError(err).Error("failed to stop component")
		}
	}
}
