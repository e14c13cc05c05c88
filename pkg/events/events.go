// Package events carries the lifecycle of a conversation query (start,
// answer, correction, failure) to watermill subscribers.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart      EventType = "start"
	EventTypeFinal      EventType = "final"
	EventTypeCorrection EventType = "correction"
	EventTypeError      EventType = "error"
)

// EventMetadata identifies the query an event belongs to.
type EventMetadata struct {
	QueryID uuid.UUID `json:"query_id"`
	Model   string    `json:"model"`
	User    string    `json:"user,omitempty"`
	Time    time.Time `json:"time"`
}

func (m EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("query_id", m.QueryID.String())
	e.Str("model", m.Model)
	if m.User != "" {
		e.Str("user", m.User)
	}
}

type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

type EventStart struct {
	EventImpl
	Text     string `json:"text"`
	HasImage bool   `json:"has_image,omitempty"`
}

func NewStartEvent(metadata EventMetadata, text string, hasImage bool) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
		Text:      text,
		HasImage:  hasImage,
	}
}

type EventFinal struct {
	EventImpl
	Text       string                 `json:"text"`
	TokenUsage map[string]interface{} `json:"token_usage,omitempty"`
}

func NewFinalEvent(metadata EventMetadata, text string, tokenUsage map[string]interface{}) *EventFinal {
	return &EventFinal{
		EventImpl:  EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:       text,
		TokenUsage: tokenUsage,
	}
}

// EventCorrection carries the raw correcting agent verdict; "OK" means no
// correction.
type EventCorrection struct {
	EventImpl
	Correction string                 `json:"correction"`
	TokenUsage map[string]interface{} `json:"token_usage,omitempty"`
}

func NewCorrectionEvent(metadata EventMetadata, correction string, tokenUsage map[string]interface{}) *EventCorrection {
	return &EventCorrection{
		EventImpl:  EventImpl{Type_: EventTypeCorrection, Metadata_: metadata},
		Correction: correction,
		TokenUsage: tokenUsage,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

func (e *EventError) Error() error {
	return errors.New(e.ErrorString)
}

// NewEventFromJson decodes an event published by a WatermillSink.
func NewEventFromJson(b []byte) (Event, error) {
	var impl EventImpl
	if err := json.Unmarshal(b, &impl); err != nil {
		return nil, errors.Wrap(err, "could not decode event")
	}

	var ret Event
	switch impl.Type_ {
	case EventTypeStart:
		ret = &EventStart{}
	case EventTypeFinal:
		ret = &EventFinal{}
	case EventTypeCorrection:
		ret = &EventCorrection{}
	case EventTypeError:
		ret = &EventError{}
	default:
		return nil, errors.Errorf("unknown event type %q", impl.Type_)
	}
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s event", impl.Type_)
	}
	return ret, nil
}
