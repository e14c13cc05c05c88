package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CorrelationIDMetadataKey is the message metadata key that ties query events
// and usage records back to the query that produced them.
const CorrelationIDMetadataKey = "correlation_id"

// WatermillLogger writes the router and pubsub logs of the event router into
// zerolog, tagged with component=watermill.
type WatermillLogger struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

func NewWatermillLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{
		logger: logger.With().Str("component", "watermill").Logger(),
	}
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(fields).Err(err).Caller(1).Msg(msg)
}

// Info is demoted: watermill reports every subscription and handler start.
func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{logger: w.logger.With().Fields(fields).Logger()}
}

type correlationIDContextKey struct{}

// ContextWithCorrelationID attaches a query id to ctx. Sinks set it as the
// message context so the publisher can stamp it.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, correlationID)
}

// CorrelationIDFromContext returns the id set by ContextWithCorrelationID.
// Messages published outside a query, such as usage records, get a "gen_" id.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDContextKey{}).(string); ok && id != "" {
		return id
	}
	log.Ctx(ctx).Debug().Msg("no query id in context, generating a correlation id")
	return "gen_" + watermill.NewShortUUID()
}

// CorrelationID reads the stamped id of a received message.
func CorrelationID(msg *message.Message) string {
	return msg.Metadata.Get(CorrelationIDMetadataKey)
}

// CorrelatingPublisher stamps CorrelationIDMetadataKey on every message that
// does not carry one yet.
type CorrelatingPublisher struct {
	message.Publisher
}

func (p CorrelatingPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if CorrelationID(msg) == "" {
			msg.Metadata.Set(CorrelationIDMetadataKey, CorrelationIDFromContext(msg.Context()))
		}
	}
	return p.Publisher.Publish(topic, messages...)
}
