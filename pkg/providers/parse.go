package providers

import (
	"encoding/json"
	"reflect"

	"github.com/rs/zerolog/log"
)

// ParseLLMResponse extracts the token usage mapping from a decoded provider
// response. It follows generations[0][0].message.response_metadata.token_usage
// and falls back to a top level "usage" mapping. Any missing link or
// unexpected shape yields nil.
func ParseLLMResponse(resp interface{}) map[string]interface{} {
	switch v := resp.(type) {
	case nil:
		return nil
	case []byte:
		return ParseLLMResponse(json.RawMessage(v))
	case json.RawMessage:
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err != nil {
			log.Debug().Err(err).Msg("could not decode raw response")
			return nil
		}
		return ParseLLMResponse(decoded)
	}

	if usage, ok := toMap(walk(resp, "generations", 0, 0, "message", "response_metadata", "token_usage")); ok {
		return usage
	}
	if usage, ok := toMap(walk(resp, "usage")); ok {
		return usage
	}

	log.Debug().Str("type", reflect.TypeOf(resp).String()).Msg("no token usage in response")
	return nil
}

// walk follows a path of map keys (string) and slice indices (int).
func walk(v interface{}, path ...interface{}) interface{} {
	cur := reflect.ValueOf(v)
	for _, step := range path {
		cur = indirect(cur)
		if !cur.IsValid() {
			return nil
		}
		switch s := step.(type) {
		case string:
			if cur.Kind() != reflect.Map || cur.Type().Key().Kind() != reflect.String {
				return nil
			}
			cur = cur.MapIndex(reflect.ValueOf(s).Convert(cur.Type().Key()))
		case int:
			if cur.Kind() != reflect.Slice && cur.Kind() != reflect.Array {
				return nil
			}
			if s >= cur.Len() {
				return nil
			}
			cur = cur.Index(s)
		}
	}
	cur = indirect(cur)
	if !cur.IsValid() {
		return nil
	}
	return cur.Interface()
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	ret := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		ret[iter.Key().String()] = iter.Value().Interface()
	}
	return ret, true
}
