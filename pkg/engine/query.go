package engine

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/usage"
)

// NoCorrection is the correcting agent's answer when nothing needs fixing.
const NoCorrection = "OK"

const correctionInstruction = "If there is nothing to correct, please respond with just 'OK', and nothing else!"

const tokenUsageMetadataKey = "token_usage"

// Response is the result of a query. Correction is nil when correction is
// disabled; otherwise it holds the raw correcting agent text, NoCorrection
// included. The answer is never altered by the correction.
type Response struct {
	Answer     string
	TokenUsage map[string]interface{}
	Correction *string
}

// Query appends text as a human message, sends the whole log to the primary
// model, appends the answer and records its usage. When Correct is set the
// answer is then reviewed by the correcting agent.
//
// A failing provider call is returned as is; the human message stays in the
// log.
func (c *Conversation) Query(ctx context.Context, text string, imageURL string) (*Response, error) {
	chat, err := c.binding.Chat()
	if err != nil {
		return nil, err
	}

	md := events.EventMetadata{
		QueryID: uuid.New(),
		Model:   c.ModelName,
		User:    c.User,
		Time:    time.Now(),
	}
	l := log.With().Str("model", c.ModelName).Str("query_id", md.QueryID.String()).Logger()

	c.state = StateQuerying
	defer func() {
		c.state = StateReady
	}()

	events.PublishAll(c.sinks, events.NewStartEvent(md, text, imageURL != ""))

	if err := c.appendQuery(ctx, text, imageURL); err != nil {
		events.PublishAll(c.sinks, events.NewErrorEvent(md, err))
		return nil, err
	}

	turns, err := c.buildTurns(c.Messages.Messages())
	if err != nil {
		events.PublishAll(c.sinks, events.NewErrorEvent(md, err))
		return nil, err
	}

	l.Debug().Int("turns", len(turns)).Msg("sending query")
	reply, err := chat.Generate(ctx, turns)
	if err != nil {
		l.Debug().Err(err).Msg("query failed")
		events.PublishAll(c.sinks, events.NewErrorEvent(md, err))
		return nil, err
	}

	tokenUsage := replyUsage(reply)
	var options []conversation.MessageOption
	if tokenUsage != nil {
		options = append(options, conversation.WithMetadata(map[string]interface{}{
			tokenUsageMetadataKey: tokenUsage,
		}))
	}
	c.Messages.AppendAIMessage(reply.Text, options...)
	c.recordUsage(ctx, c.ModelName, tokenUsage)
	events.PublishAll(c.sinks, events.NewFinalEvent(md, reply.Text, tokenUsage))

	ret := &Response{
		Answer:     reply.Text,
		TokenUsage: tokenUsage,
	}
	if !c.Correct {
		return ret, nil
	}

	c.state = StateCorrecting
	md.Model = c.CAModelName
	correction, correctionUsage, err := c.correct(ctx, reply.Text)
	if err != nil {
		events.PublishAll(c.sinks, events.NewErrorEvent(md, err))
		return nil, err
	}
	events.PublishAll(c.sinks, events.NewCorrectionEvent(md, correction, correctionUsage))

	l.Debug().Bool("corrected", correction != NoCorrection).Msg("query done")
	ret.Correction = &correction
	return ret, nil
}

func (c *Conversation) appendQuery(ctx context.Context, text string, imageURL string) error {
	if imageURL == "" {
		c.Messages.AppendHumanMessage(text)
		return nil
	}

	if c.encoder == nil {
		if !isRemote(imageURL) {
			return errors.Errorf("no image encoder configured for %s", imageURL)
		}
		c.Messages.AppendHumanMessage(text, conversation.WithImages(conversation.NewImageContentFromURL(imageURL)))
		return nil
	}

	encoded, err := c.encoder.Encode(ctx, imageURL)
	if err != nil {
		return errors.Wrapf(err, "could not encode image %s", imageURL)
	}
	c.Messages.AppendHumanMessage(text, conversation.WithImages(conversation.NewImageContentFromBase64PNG(encoded)))
	return nil
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// buildTurns dispatches on the backend capability only.
func (c *Conversation) buildTurns(msgs []*conversation.Message) ([]history.Turn, error) {
	if c.binding.Backend().SupportsSystemRole() {
		return history.Canonical(msgs)
	}
	return history.Flatten(msgs, c.strategy)
}

func replyUsage(reply *providers.Reply) map[string]interface{} {
	if reply.Usage != nil {
		return reply.Usage
	}
	return providers.ParseLLMResponse(reply.Raw)
}

func (c *Conversation) recordUsage(ctx context.Context, model string, tokenUsage map[string]interface{}) {
	if tokenUsage == nil {
		log.Debug().Str("model", model).Msg("no token usage reported")
		tokenUsage = map[string]interface{}{}
	}
	if err := c.accountant.Record(ctx, c.User, model, tokenUsage); err != nil {
		log.Warn().Err(err).Str("model", model).Msg("could not record token usage")
	}
}

// CorrectResponse asks the correcting agent to review msg and returns its
// raw answer.
func (c *Conversation) CorrectResponse(ctx context.Context, msg string) (string, error) {
	ret, _, err := c.correctResponse(ctx, msg)
	return ret, err
}

func (c *Conversation) correctResponse(ctx context.Context, msg string) (string, map[string]interface{}, error) {
	caChat, err := c.binding.CAChat()
	if err != nil {
		return "", nil, err
	}

	envelope := c.CAMessages.Messages()
	envelope = append(envelope,
		conversation.NewHumanMessage(msg),
		conversation.NewSystemMessage(correctionInstruction),
	)
	turns, err := c.buildTurns(envelope)
	if err != nil {
		return "", nil, err
	}

	reply, err := caChat.Generate(ctx, turns)
	if err != nil {
		return "", nil, err
	}

	tokenUsage := replyUsage(reply)
	c.recordUsage(ctx, c.CAModelName, tokenUsage)
	return reply.Text, tokenUsage, nil
}

// correct runs the correction, sentence by sentence when SplitCorrection is
// set. Split corrections keep only the findings and fall back to
// NoCorrection when every sentence is fine.
func (c *Conversation) correct(ctx context.Context, answer string) (string, map[string]interface{}, error) {
	if !c.SplitCorrection {
		return c.correctResponse(ctx, answer)
	}

	var findings []string
	total := map[string]interface{}{}
	for _, sentence := range SplitSentences(answer) {
		correction, tokenUsage, err := c.correctResponse(ctx, sentence)
		if err != nil {
			return "", nil, err
		}
		addUsage(total, tokenUsage)
		if !isNoCorrection(correction) {
			findings = append(findings, correction)
		}
	}

	if len(total) == 0 {
		total = nil
	}
	if len(findings) == 0 {
		return NoCorrection, total, nil
	}
	return strings.Join(findings, "\n"), total, nil
}

func isNoCorrection(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, NoCorrection) || strings.EqualFold(s, NoCorrection+".")
}

// addUsage sums the numeric entries of tokenUsage into total.
func addUsage(total map[string]interface{}, tokenUsage map[string]interface{}) {
	for k, v := range usage.Numeric(tokenUsage) {
		prev, _ := total[k].(float64)
		total[k] = prev + v
	}
}

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
func SplitSentences(text string) []string {
	var ret []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			ret = append(ret, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		ret = append(ret, s)
	}
	return ret
}
