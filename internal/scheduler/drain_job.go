package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stonksbot/stonks/internal/events"
	"github.com/stonksbot/stonks/internal/modules/broker"
)

// DrainJob is the periodic broker tick. It replays the deferred order queue
// once the market opens and folds a fresh valuation into today's history
// candle. Outcome lines are published on the event bus since no HTTP caller
// is waiting for them.
type DrainJob struct {
	broker *broker.Service
	bus    *events.Bus
	log    zerolog.Logger
}

// NewDrainJob creates the queue-drain/valuation job.
func NewDrainJob(brokerSvc *broker.Service, bus *events.Bus, log zerolog.Logger) *DrainJob {
	return &DrainJob{
		broker: brokerSvc,
		bus:    bus,
		log:    log.With().Str("job", "queue_drain").Logger(),
	}
}

// Name returns the job name
func (j *DrainJob) Name() string {
	return "queue_drain"
}

// Run executes one tick.
func (j *DrainJob) Run() error {
	if len(j.broker.Queue()) > 0 {
		lines, err := j.broker.ExecuteQueue()
		if err != nil {
			return fmt.Errorf("draining order queue: %w", err)
		}
		if len(lines) > 0 {
			j.log.Info().Int("lines", len(lines)).Msg("Queue drained")
			j.bus.Publish(events.Event{Type: events.QueueDrained, Lines: lines})
		}
	}

	value, err := j.broker.GetValue()
	if err != nil {
		return fmt.Errorf("recording valuation: %w", err)
	}
	j.bus.Publish(events.Event{Type: events.PortfolioValued, Value: value})

	return nil
}
