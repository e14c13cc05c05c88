package usage

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublishingCallback publishes every usage event as JSON on topic. Publishing
// failures are logged, they never fail the query.
func PublishingCallback(publisher message.Publisher, topic string) Callback {
	return func(user string, model string, tokenUsage map[string]interface{}) {
		b, err := json.Marshal(Event{User: user, Model: model, TokenUsage: tokenUsage})
		if err != nil {
			log.Warn().Err(err).Str("model", model).Msg("could not marshal usage event")
			return
		}

		msg := message.NewMessage(watermill.NewUUID(), b)
		msg.Metadata.Set("user", user)
		msg.Metadata.Set("model", model)

		if err := publisher.Publish(topic, msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to publish usage event")
		}
	}
}

// MultiCallback calls every non nil callback in order.
func MultiCallback(callbacks ...Callback) Callback {
	return func(user string, model string, tokenUsage map[string]interface{}) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(user, model, tokenUsage)
			}
		}
	}
}
