package connscope

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/connscope/connscope/pkg/connscope/feed"
)

// StartWithConfig wires the feed, monitor, and stats server together
// and runs until an interrupt arrives or the feed exhausts its retry
// budget.
func StartWithConfig(config *Config) error {
	config.MetricsClient.SetStarted()
	config.ShuttingDown.Store(false)

	if config.Health == nil {
		config.SetupHealthTracker()
	}

	monitor := NewMonitor(config)
	client := feed.NewClient(feed.Config{
		Addr:          config.ControllerAddr,
		Secret:        config.Secret,
		Poll:          config.Poll,
		PollInterval:  config.PollInterval,
		RetryDelay:    config.RetryDelay,
		MaxRetries:    config.MaxRetries,
		MetricsClient: config.MetricsClient,
		Log:           config.Log,
		Health:        config.Health,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var statsServer *StatsServer
	if config.StatsAddr != "" || config.StatsSocketDir != "" {
		statsServer = StartStatsServer(config, monitor)
	}

	monitorDone := make(chan struct{})
	go func() {
		monitor.Run(ctx, client.Updates())
		close(monitorDone)
	}()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- client.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var err error
	select {
	case <-sig:
		config.Log.Info("interrupt received, shutting down")
	case err = <-feedErr:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	config.ShuttingDown.Store(true)
	cancel()
	<-monitorDone
	if statsServer != nil {
		statsServer.Shutdown()
	}
	return err
}
