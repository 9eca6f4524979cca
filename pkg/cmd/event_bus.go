package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/eventbus/kafka"
)

// NewEventBus creates an event bus instance based on the provider. The
// gochannel provider is in-process only and meant for single-binary setups.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		channel := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillEventBus(channel, channel), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
