// Package catalog holds the static model metadata: which models exist, which
// provider serves them, their context size and their per-token cost.
package catalog

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrModelInfoNotFound = errors.New("model information is not available")

type ModelInfo struct {
	MaxTokens          *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	InputCostPerToken  *float64 `yaml:"input_cost_per_token,omitempty" json:"input_cost_per_token,omitempty"`
	OutputCostPerToken *float64 `yaml:"output_cost_per_token,omitempty" json:"output_cost_per_token,omitempty"`
	Provider           string   `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// Catalog is read-only after construction.
type Catalog struct {
	Models           []string             `yaml:"models" json:"models"`
	ModelsByProvider map[string][]string  `yaml:"models_by_provider" json:"models_by_provider"`
	ModelCost        map[string]ModelInfo `yaml:"model_cost" json:"model_cost"`
}

func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		// the embedded catalog is part of the binary
		panic(errors.Wrap(err, "invalid embedded catalog"))
	}
	return c
}

func Load(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.NewDecoder(r).Decode(c); err != nil {
		return nil, errors.Wrap(err, "could not decode model catalog")
	}
	if c.ModelsByProvider == nil {
		c.ModelsByProvider = map[string][]string{}
	}
	if c.ModelCost == nil {
		c.ModelCost = map[string]ModelInfo{}
	}
	return c, nil
}

func LoadFromFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

func (c *Catalog) GetModelInfo(name string) (ModelInfo, error) {
	info, ok := c.ModelCost[name]
	if !ok {
		return ModelInfo{}, errors.Wrapf(ErrModelInfoNotFound, "model %s", name)
	}
	return *clone.Clone(&info).(*ModelInfo), nil
}

func (c *Catalog) GetModelMaxTokens(name string) (int, error) {
	info, err := c.GetModelInfo(name)
	if err != nil {
		return 0, err
	}
	if info.MaxTokens == nil {
		return 0, errors.Wrapf(ErrModelInfoNotFound, "model %s has no max_tokens", name)
	}
	return *info.MaxTokens, nil
}

func (c *Catalog) GetAllModelInfo() map[string]ModelInfo {
	return clone.Clone(c.ModelCost).(map[string]ModelInfo)
}

func (c *Catalog) GetModelsByProvider() map[string][]string {
	return clone.Clone(c.ModelsByProvider).(map[string][]string)
}

func (c *Catalog) GetAllModelList() []string {
	ret := make([]string, len(c.Models))
	copy(ret, c.Models)
	return ret
}

func (c *Catalog) HasModel(name string) bool {
	for _, m := range c.Models {
		if m == name {
			return true
		}
	}
	return false
}

// Providers returns the provider names in sorted order.
func (c *Catalog) Providers() []string {
	ret := make([]string, 0, len(c.ModelsByProvider))
	for p := range c.ModelsByProvider {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

// EstimateCost prices a usage mapping. Prompt tokens are read from
// prompt_tokens or input_tokens, completion tokens from completion_tokens or
// output_tokens.
func (c *Catalog) EstimateCost(model string, tokenUsage map[string]interface{}) (float64, error) {
	info, err := c.GetModelInfo(model)
	if err != nil {
		return 0, err
	}

	prompt := firstNumber(tokenUsage, "prompt_tokens", "input_tokens", "prompt_eval_count")
	completion := firstNumber(tokenUsage, "completion_tokens", "output_tokens", "eval_count")

	cost := 0.0
	if info.InputCostPerToken != nil {
		cost += prompt * *info.InputCostPerToken
	}
	if info.OutputCostPerToken != nil {
		cost += completion * *info.OutputCostPerToken
	}
	return cost, nil
}

func firstNumber(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return float64(n)
		case int32:
			return float64(n)
		case int64:
			return float64(n)
		case float32:
			return float64(n)
		case float64:
			return n
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
