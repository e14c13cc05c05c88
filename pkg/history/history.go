// Package history turns a conversation log into the role/content turns a
// provider expects.
package history

import (
	"strings"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/pkg/errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a provider facing message. Images holds URLs, either remote or
// base64 data URLs.
type Turn struct {
	Role    string   `json:"role" yaml:"role"`
	Content string   `json:"content" yaml:"content"`
	Images  []string `json:"images,omitempty" yaml:"images,omitempty"`
}

type Strategy string

const (
	// StrategyCollapse joins everything before the last AI message into one
	// user turn, keeps the last AI message as the assistant turn and joins
	// everything after it into the trailing user turn.
	StrategyCollapse Strategy = "collapse"
	// StrategyFoldSystem folds each run of system messages into the human
	// message that follows it and keeps every other message as its own turn.
	StrategyFoldSystem Strategy = "fold-system"
)

const DefaultStrategy = StrategyCollapse

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return DefaultStrategy, nil
	case StrategyCollapse, StrategyFoldSystem:
		return Strategy(s), nil
	default:
		return "", errors.Errorf("unknown flatten strategy %q", s)
	}
}

type entry struct {
	role   conversation.Role
	text   string
	images []string
}

func entries(msgs []*conversation.Message) ([]entry, error) {
	ret := make([]entry, 0, len(msgs))
	for i, msg := range msgs {
		c, ok := msg.Chat()
		if !ok {
			return nil, errors.Wrapf(conversation.ErrUnrecognizedMessageVariant, "message %d", i)
		}
		e := entry{role: c.Role, text: c.Text}
		for _, img := range c.Images {
			if img != nil {
				e.images = append(e.images, img.ImageURL)
			}
		}
		ret = append(ret, e)
	}
	return ret, nil
}

func roleName(r conversation.Role) string {
	switch r {
	case conversation.RoleSystem:
		return RoleSystem
	case conversation.RoleAssistant:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Canonical maps every message to exactly one turn.
func Canonical(msgs []*conversation.Message) ([]Turn, error) {
	es, err := entries(msgs)
	if err != nil {
		return nil, err
	}
	ret := make([]Turn, 0, len(es))
	for _, e := range es {
		ret = append(ret, Turn{Role: roleName(e.role), Content: e.text, Images: e.images})
	}
	return ret, nil
}

// Flatten builds turns for backends that have no system role.
func Flatten(msgs []*conversation.Message, strategy Strategy) ([]Turn, error) {
	es, err := entries(msgs)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case StrategyFoldSystem:
		return foldSystem(es), nil
	case StrategyCollapse, "":
		return collapse(es), nil
	default:
		return nil, errors.Errorf("unknown flatten strategy %q", strategy)
	}
}

func merge(role string, es []entry) Turn {
	texts := make([]string, 0, len(es))
	var images []string
	for _, e := range es {
		texts = append(texts, e.text)
		images = append(images, e.images...)
	}
	return Turn{Role: role, Content: strings.Join(texts, "\n"), Images: images}
}

func collapse(es []entry) []Turn {
	lastAI := -1
	for i := len(es) - 1; i >= 0; i-- {
		if es[i].role == conversation.RoleAssistant {
			lastAI = i
			break
		}
	}

	ret := []Turn{}
	if lastAI < 0 {
		if len(es) > 0 {
			ret = append(ret, merge(RoleUser, es))
		}
		return ret
	}

	if lastAI > 0 {
		ret = append(ret, merge(RoleUser, es[:lastAI]))
	}
	ret = append(ret, Turn{Role: RoleAssistant, Content: es[lastAI].text})
	if lastAI+1 < len(es) {
		ret = append(ret, merge(RoleUser, es[lastAI+1:]))
	}
	return ret
}

func foldSystem(es []entry) []Turn {
	ret := []Turn{}
	var pending []entry

	for _, e := range es {
		switch e.role {
		case conversation.RoleSystem:
			pending = append(pending, e)
		case conversation.RoleUser:
			ret = append(ret, merge(RoleUser, append(pending, e)))
			pending = nil
		case conversation.RoleAssistant:
			if len(pending) > 0 {
				ret = append(ret, merge(RoleUser, pending))
				pending = nil
			}
			ret = append(ret, Turn{Role: RoleAssistant, Content: e.text})
		}
	}
	if len(pending) > 0 {
		ret = append(ret, merge(RoleUser, pending))
	}

	return ret
}
