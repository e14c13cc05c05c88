package events

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PrinterFunc returns a handler writing one line per event to w.
func PrinterFunc(w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable event")
			return nil
		}

		var line string
		switch e_ := e.(type) {
		case *EventStart:
			line = fmt.Sprintf("query %s", e_.Metadata().Model)
			if e_.HasImage {
				line += " (with image)"
			}
		case *EventFinal:
			line = fmt.Sprintf("answer %s %s", e_.Metadata().Model, formatUsage(e_.TokenUsage))
		case *EventCorrection:
			line = fmt.Sprintf("correction %s %s", e_.Metadata().Model, formatUsage(e_.TokenUsage))
		case *EventError:
			line = fmt.Sprintf("error %s: %s", e_.Metadata().Model, e_.ErrorString)
		}

		_, err = fmt.Fprintf(w, "[%s] %s\n", e.Metadata().QueryID.String()[:8], strings.TrimSpace(line))
		return err
	}
}

func formatUsage(tokenUsage map[string]interface{}) string {
	keys := make([]string, 0, len(tokenUsage))
	for k := range tokenUsage {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, tokenUsage[k]))
	}
	return strings.Join(parts, " ")
}
