package services

import (
	"context"
	"time"

	"visitrack/pkg/logger"
	"visitrack/pkg/websocket"
)

// LiveMetricsPublisher pushes a throughput snapshot to the metrics room.
type LiveMetricsPublisher struct {
	analytics AnalyticsService
	feed      LiveFeed
	interval  time.Duration
	logger    *logger.Logger
}

func NewLiveMetricsPublisher(analytics AnalyticsService, feed LiveFeed, interval time.Duration, logger *logger.Logger) *LiveMetricsPublisher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &LiveMetricsPublisher{
		analytics: analytics,
		feed:      feed,
		interval:  interval,
		logger:    logger,
	}
}

func (p *LiveMetricsPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PublishSnapshot(ctx)
		}
	}
}

func (p *LiveMetricsPublisher) PublishSnapshot(ctx context.Context) bool {
	system, err := p.analytics.GetSystemMetrics(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to collect live metrics")
		return false
	}
	realtime, err := p.analytics.GetRealtimeUsers(ctx, "")
	if err != nil {
		p.logger.WithError(err).Warn("Failed to collect realtime users")
		return false
	}

	return p.feed.Publish(websocket.RoomMetrics, "metrics_snapshot", map[string]interface{}{
		"system":   system,
		"realtime": realtime,
	})
}
