package watch

import (
	"context"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Config holds configuration for the watch loop
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the default watch configuration
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
	}
}

// Loop runs a check immediately and then once per interval until the context is cancelled
type Loop struct {
	config Config
	run    func(ctx context.Context) error
}

func NewLoop(config Config, run func(ctx context.Context) error) *Loop {
	return &Loop{
		config: config,
		run:    run,
	}
}

// Start blocks until ctx is done. Errors from a run are logged and the loop continues.
func (l *Loop) Start(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("watch")

	logger.Info("Starting watch loop", "interval", l.config.Interval)

	l.runOnce(ctx)

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runOnce(ctx)
		case <-ctx.Done():
			logger.Info("Watch loop stopped")
			return
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("watch")

	started := time.Now()
	if err := l.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error(err, "Release version check failed")
		return
	}
	logger.V(1).Info("Release version check completed", "duration", time.Since(started))
}
