// Package router hands encoded events to their configured destination,
// retrying transient delivery failures and accounting for what could not be
// delivered.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/cefstream/cefstream/processor"
	"github.com/cefstream/cefstream/router/collector"
	"github.com/cefstream/cefstream/router/syslog"
)

// Destination kinds selectable through Router.destination.
const (
	DestinationSyslog    = "syslog"
	DestinationCollector = "collector"
)

// Destination is a terminal transport for encoded events.
type Destination interface {
	// Send delivers events in order and returns how many made it. A nil
	// error means all of them did; otherwise the caller may retry the
	// remainder.
	Send(ctx context.Context, events []processor.EncodedEvent) (int, error)
	// Ping verifies that the destination is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Handle delivers batches of encoded events to a single destination.
type Handle struct {
	log          logger.Logger
	statsFactory stats.Stats
	dest         Destination
	destType     string

	config struct {
		maxRetries   config.ValueLoader[int]
		minRetryTime config.ValueLoader[time.Duration]
		maxRetryTime config.ValueLoader[time.Duration]
	}
}

// New builds a router handle delivering to dest.
func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, dest Destination) *Handle {
	h := &Handle{
		log:          log.Child("router"),
		statsFactory: statsFactory,
		dest:         dest,
		destType:     conf.GetString("Router.destination", DestinationSyslog),
	}
	h.config.maxRetries = conf.GetReloadableIntVar(3, 1, "Router.maxRetries")
	h.config.minRetryTime = conf.GetReloadableDurationVar(1, time.Second, "Router.minRetryTime")
	h.config.maxRetryTime = conf.GetReloadableDurationVar(30, time.Second, "Router.maxRetryTime")
	return h
}

// Deliver sends events to the destination, retrying failed attempts with
// capped exponential backoff and resuming from the first undelivered event.
// Events still undelivered once retries are exhausted are dropped and
// counted.
func (h *Handle) Deliver(ctx context.Context, events []processor.EncodedEvent) error {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()
	tags := stats.Tags{
		"dataType": events[0].DataType,
		"subtype":  events[0].Subtype,
		"destType": h.destType,
	}
	defer h.statsFactory.NewTaggedStat("router.delivery_time", stats.TimerType, tags).Since(start)

	remaining := events
	err := backoff.RetryNotify(
		func() error {
			sent, err := h.dest.Send(ctx, remaining)
			remaining = remaining[sent:]
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(h.config.minRetryTime.Load()),
				backoff.WithMaxInterval(h.config.maxRetryTime.Load()),
				backoff.WithMaxElapsedTime(0),
			),
			uint64(h.config.maxRetries.Load()),
		), ctx),
		func(err error, next time.Duration) {
			h.log.Warnn("delivery attempt failed, retrying",
				logger.NewDurationField("retryIn", next),
				logger.NewIntField("pending", int64(len(remaining))),
				obskit.Error(err),
			)
		},
	)

	h.statsFactory.NewTaggedStat("router.delivered_events", stats.CountType, tags).Count(len(events) - len(remaining))
	if err != nil {
		h.log.Errorn("dropping events after delivery retries were exhausted",
			logger.NewIntField("dropped", int64(len(remaining))),
			obskit.Error(err),
		)
		h.statsFactory.NewTaggedStat("router.dropped_events", stats.CountType, tags).Count(len(remaining))
		return err
	}
	return nil
}

// Ping verifies that the destination is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	return h.dest.Ping(ctx)
}

// Close releases the destination.
func (h *Handle) Close() error {
	return h.dest.Close()
}

// ValidateConfig checks the delivery settings before anything connects: the
// destination specific rules plus the shared log source identifier
// constraint.
func ValidateConfig(conf *config.Config) error {
	switch dest := conf.GetString("Router.destination", DestinationSyslog); dest {
	case DestinationSyslog:
		if err := syslog.ConfigFromConf(conf).Validate(); err != nil {
			return err
		}
	case DestinationCollector:
		if err := collector.ConfigFromConf(conf).Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown destination %q", dest)
	}
	sourceID := strings.TrimSpace(conf.GetString("Processor.logSourceIdentifier", "netskopece"))
	if sourceID == "" || strings.Contains(sourceID, " ") {
		return errors.New("log source identifier must be a non-empty single token")
	}
	return nil
}
