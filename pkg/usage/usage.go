// Package usage records token usage reported by providers.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CommunityUser is the only user whose usage is aggregated into daily buckets.
const CommunityUser = "community"

// Stats is an external counter store. Increment adds every field of fields to
// the counters stored under key.
type Stats interface {
	Increment(ctx context.Context, key string, fields map[string]float64) error
	Get(ctx context.Context, key string) (map[string]float64, error)
}

// Callback receives the unfiltered usage mapping of every recorded call.
type Callback func(user string, model string, tokenUsage map[string]interface{})

type Event struct {
	User       string                 `json:"user"`
	Model      string                 `json:"model"`
	TokenUsage map[string]interface{} `json:"token_usage"`
}

// BucketKey is the counter key for a user and day, e.g. usage:2024-05-01:community.
func BucketKey(t time.Time, user string) string {
	return fmt.Sprintf("usage:%s:%s", t.Format("2006-01-02"), user)
}

// Numeric returns the top level numeric entries of a usage mapping. Nested
// mappings, strings and booleans are dropped.
func Numeric(tokenUsage map[string]interface{}) map[string]float64 {
	ret := map[string]float64{}
	for k, v := range tokenUsage {
		if f, ok := toFloat(v); ok {
			ret[k] = f
		}
	}
	return ret
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

type Accountant struct {
	stats    Stats
	callback Callback
	now      func() time.Time
}

type AccountantOption func(*Accountant)

func WithStats(stats Stats) AccountantOption {
	return func(a *Accountant) {
		a.stats = stats
	}
}

func WithCallback(callback Callback) AccountantOption {
	return func(a *Accountant) {
		a.callback = callback
	}
}

func WithClock(now func() time.Time) AccountantOption {
	return func(a *Accountant) {
		a.now = now
	}
}

func NewAccountant(options ...AccountantOption) *Accountant {
	ret := &Accountant{
		now: time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Record applies both usage effects. Community usage is added to the daily
// bucket with one "{field}:{model}" counter per numeric field, and the
// callback always receives the original mapping, whatever the user, even
// when it is empty.
func (a *Accountant) Record(ctx context.Context, user string, model string, tokenUsage map[string]interface{}) error {
	var err error

	fields := map[string]float64{}
	for k, v := range Numeric(tokenUsage) {
		fields[k+":"+model] = v
	}

	if user == CommunityUser && a.stats != nil && len(fields) > 0 {
		key := BucketKey(a.now(), user)
		log.Debug().Str("key", key).Str("model", model).Int("fields", len(fields)).Msg("incrementing usage stats")
		if incErr := a.stats.Increment(ctx, key, fields); incErr != nil {
			err = errors.Wrapf(incErr, "could not increment usage stats %s", key)
		}
	}

	if a.callback != nil {
		a.callback(user, model, tokenUsage)
	}

	return err
}
