// Package engine drives a conversation: it owns the message logs, the
// provider binding and the usage accounting, and runs the query and
// correction workflow against them.
package engine

import (
	"context"

	"github.com/go-go-golems/parley/pkg/catalog"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/usage"
)

type State int

const (
	StateUnauthenticated State = iota
	StateReady
	StateQuerying
	StateCorrecting
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateReady:
		return "ready"
	case StateQuerying:
		return "querying"
	case StateCorrecting:
		return "correcting"
	default:
		return "unknown"
	}
}

// Prompts is the prompt bundle a conversation is configured with.
// RAGAgentPrompts and ToolPrompts are carried for retrieval and tool layers
// and are not expanded here.
type Prompts struct {
	PrimaryModelPrompts    []string          `yaml:"primary_model_prompts" json:"primary_model_prompts"`
	CorrectingAgentPrompts []string          `yaml:"correcting_agent_prompts" json:"correcting_agent_prompts"`
	RAGAgentPrompts        []string          `yaml:"rag_agent_prompts" json:"rag_agent_prompts"`
	ToolPrompts            map[string]string `yaml:"tool_prompts" json:"tool_prompts"`
}

// ImageEncoder resolves image attachments into base64 encoded PNGs.
type ImageEncoder interface {
	EncodeFile(path string) (string, error)
	Encode(ctx context.Context, pathOrURL string) (string, error)
}

// Conversation is one configured dialogue session bound to a model and a
// provider backend. It is not safe for concurrent use.
type Conversation struct {
	ModelName       string
	CAModelName     string
	Prompts         Prompts
	Correct         bool
	SplitCorrection bool
	User            string

	Messages   *conversation.Log
	CAMessages *conversation.Log

	binding    *providers.Binding
	accountant *usage.Accountant
	encoder    ImageEncoder
	strategy   history.Strategy
	catalog    *catalog.Catalog
	sinks      []events.EventSink
	state      State
}

type Option func(*Conversation)

func WithCorrect(correct bool) Option {
	return func(c *Conversation) {
		c.Correct = correct
	}
}

func WithSplitCorrection(split bool) Option {
	return func(c *Conversation) {
		c.SplitCorrection = split
	}
}

func WithAccountant(accountant *usage.Accountant) Option {
	return func(c *Conversation) {
		c.accountant = accountant
	}
}

func WithImageEncoder(encoder ImageEncoder) Option {
	return func(c *Conversation) {
		c.encoder = encoder
	}
}

func WithFlattenStrategy(strategy history.Strategy) Option {
	return func(c *Conversation) {
		c.strategy = strategy
	}
}

// WithCorrectingModel sets the model identity usage of the correcting agent
// is recorded under.
func WithCorrectingModel(model string) Option {
	return func(c *Conversation) {
		if model != "" {
			c.CAModelName = model
		}
	}
}

func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Conversation) {
		c.catalog = cat
	}
}

func WithEventSink(sinks ...events.EventSink) Option {
	return func(c *Conversation) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func New(backend providers.Backend, modelName string, prompts Prompts, options ...Option) *Conversation {
	ret := &Conversation{
		ModelName:   modelName,
		CAModelName: modelName,
		Prompts:     prompts,
		Messages:    conversation.NewLog(),
		CAMessages:  conversation.NewLog(),
		binding:     providers.NewBinding(backend),
		accountant:  usage.NewAccountant(),
		strategy:    history.StrategyCollapse,
		state:       StateUnauthenticated,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *Conversation) State() State {
	return c.state
}

func (c *Conversation) Binding() *providers.Binding {
	return c.binding
}

// SetAPIKey authenticates the backend. Only a successful call makes the
// conversation ready; a failing one leaves it unauthenticated.
func (c *Conversation) SetAPIKey(ctx context.Context, apiKey string, user string) (bool, error) {
	ok, err := c.binding.SetAPIKey(ctx, apiKey, user)
	if err != nil || !ok {
		c.state = StateUnauthenticated
		return ok, err
	}
	c.User = user
	c.state = StateReady
	return true, nil
}

// Setup seeds the logs with the configured prompts. A non-empty context is
// added as a further system message.
func (c *Conversation) Setup(systemContext string) {
	for _, p := range c.Prompts.PrimaryModelPrompts {
		c.Messages.AppendSystemMessage(p)
	}
	if systemContext != "" {
		c.Messages.AppendSystemMessage(systemContext)
	}
	for _, p := range c.Prompts.CorrectingAgentPrompts {
		c.CAMessages.AppendSystemMessage(p)
	}
}

func (c *Conversation) Reset() {
	c.Messages.Reset()
	c.CAMessages.Reset()
}

func (c *Conversation) AppendSystemMessage(text string) {
	c.Messages.AppendSystemMessage(text)
}

func (c *Conversation) AppendHumanMessage(text string) {
	c.Messages.AppendHumanMessage(text)
}

func (c *Conversation) AppendAIMessage(text string) {
	c.Messages.AppendAIMessage(text)
}

// AppendCAMessage adds a system message to the correcting agent log.
func (c *Conversation) AppendCAMessage(text string) {
	c.CAMessages.AppendSystemMessage(text)
}

// AppendImageMessage appends a human message with an image. Local files are
// encoded, remote URLs are referenced as is.
func (c *Conversation) AppendImageMessage(ctx context.Context, text string, imageURL string, local bool) error {
	var encoder conversation.ImageEncoder
	if c.encoder != nil {
		encoder = c.encoder
	}
	return c.Messages.AppendImageMessage(ctx, text, imageURL, local, encoder)
}

// MessagesJSON renders the message log as `[{"system": "..."}, ...]`.
func (c *Conversation) MessagesJSON() (string, error) {
	return c.Messages.ToJSON()
}

func (c *Conversation) catalogOrDefault() *catalog.Catalog {
	if c.catalog == nil {
		c.catalog = catalog.Default()
	}
	return c.catalog
}

func (c *Conversation) GetModelInfo(name string) (catalog.ModelInfo, error) {
	return c.catalogOrDefault().GetModelInfo(name)
}

func (c *Conversation) GetModelMaxTokens(name string) (int, error) {
	return c.catalogOrDefault().GetModelMaxTokens(name)
}

func (c *Conversation) GetAllModelInfo() map[string]catalog.ModelInfo {
	return c.catalogOrDefault().GetAllModelInfo()
}

func (c *Conversation) GetModelsByProvider() map[string][]string {
	return c.catalogOrDefault().GetModelsByProvider()
}

func (c *Conversation) GetAllModelList() []string {
	return c.catalogOrDefault().GetAllModelList()
}

// EstimateCost prices a usage mapping with the catalog costs of model.
func (c *Conversation) EstimateCost(model string, tokenUsage map[string]interface{}) (float64, error) {
	return c.catalogOrDefault().EstimateCost(model, tokenUsage)
}
