package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "consumer").Logger()

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Evictor drops cached product snapshots.
type Evictor interface {
	EvictProduct(ctx context.Context, id int64) error
}

// Consumer evicts cached products when any instance records an order for
// them. The placing instance already evicted once after commit; this second
// delete narrows the window in which a lookup that read the row before the
// commit can repopulate the cache with stale stock. Cached stock is display
// only and never used by order placement.
type Consumer struct {
	reader  MessageReader
	evictor Evictor
}

func NewConsumer(reader MessageReader, evictor Evictor) *Consumer {
	return &Consumer{reader: reader, evictor: evictor}
}

// Run reads order events until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info().Msg("Order event consumer stopped")
				return
			}
			logger.Error().Err(err).Msg("Error reading message")
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage handles one event; key is "order-<type>-<orderID>".
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	var event entity.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error().Err(err).Msgf("Error unmarshalling message at offset %d", msg.Offset)
		return
	}

	eventType := event.Type
	if parts := strings.Split(string(msg.Key), "-"); eventType == "" && len(parts) == 3 {
		eventType = parts[1]
	}

	switch eventType {
	case "created":
		if err := c.evictor.EvictProduct(ctx, event.ProductID); err != nil {
			logger.Error().Err(err).Msgf("Error evicting product %d", event.ProductID)
			return
		}
		logger.Debug().Msgf("Evicted product %d after order %d", event.ProductID, event.OrderID)
	default:
		logger.Warn().Msgf("Unknown order event type: %q", eventType)
	}
}
