// earnmon observes the venue router for one account without ever submitting:
// it refreshes routing on an interval and exports the selection and rate
// metrics over Prometheus.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/earn"
	"github.com/vultisig/earn/internal/graceful"
	"github.com/vultisig/earn/metrics"
	"github.com/vultisig/earn/orchestrator"
)

// logSink writes orchestration events to the log; the monitor has no UI.
type logSink struct {
	logger logrus.FieldLogger
}

func (s logSink) Notify(n orchestrator.Notification) {
	s.logger.WithFields(logrus.Fields{
		"status": n.Status,
		"kind":   string(n.Kind),
	}).Info(n.Description)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	cfg, err := newConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	metricsServer := metrics.StartServer(cfg.MetricsPort, logger)

	// Read-only: routing and capacity are observed, never executed.
	submit := func(context.Context, []orchestrator.Call) (string, error) {
		return "", fmt.Errorf("monitor does not submit transactions")
	}

	svc, err := earn.New(
		ctx,
		logger,
		cfg.Earn,
		ecommon.HexToAddress(cfg.Account),
		submit,
		logSink{logger: logger.WithField("pkg", "earnmon")},
		false,
	)
	if err != nil {
		logger.Fatalf("failed to wire earn service: %v", err)
	}

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.RefreshIntervalSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if er := svc.Controller.Refresh(ctx); er != nil {
					logger.WithError(er).Warn("refresh failed")
				}
			}
		}
	}()

	graceful.Wait(ctx, logger, metricsServer.Stop)
}
