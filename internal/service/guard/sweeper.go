package guard

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 1m"

// StartSweeper runs Sweep on schedule until ctx is done
// Returned channel is closed when the sweeper is stopped and the running sweep (if any) finished
func (g *Guard) StartSweeper(ctx context.Context, schedule string) (<-chan struct{}, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		keys, users := g.Sweep()
		g.logger.Debug("Guard sweep finished", "expired_keys", keys, "forgiven_users", users)
	})
	if err != nil {
		return nil, fmt.Errorf("error while scheduling guard sweep %q. Err: %w", schedule, err)
	}

	idleStopped := make(chan struct{})
	c.Start()
	g.logger.Debug("Guard sweeper started", "schedule", schedule)

	go func() {
		defer close(idleStopped)
		<-ctx.Done()
		<-c.Stop().Done()
		g.logger.Debug("Guard sweeper stopped")
	}()

	return idleStopped, nil
}
