package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/parley/pkg/catalog"
)

func loadCatalog() (*catalog.Catalog, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return s.LoadCatalog()
}

func NewModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the model catalog",
	}

	cmd.AddCommand(
		buildGlazeCommand(NewModelsListCommand()),
		buildGlazeCommand(NewModelsInfoCommand()),
		buildGlazeCommand(NewModelsMaxTokensCommand()),
		buildGlazeCommand(NewModelsProvidersCommand()),
		buildGlazeCommand(NewModelsCostCommand()),
	)
	return cmd
}

func newGlazedDescription(name string, short string, options ...cmds.CommandDescriptionOption) (*cmds.CommandDescription, error) {
	glazedLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	options = append([]cmds.CommandDescriptionOption{
		cmds.WithShort(short),
		cmds.WithLayersList(glazedLayer),
	}, options...)
	return cmds.NewCommandDescription(name, options...), nil
}

type ModelsListSettings struct {
	Provider string `glazed.parameter:"of-provider"`
}

type ModelsListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsListCommand)(nil)

func NewModelsListCommand() (*ModelsListCommand, error) {
	description, err := newGlazedDescription("list", "List all known models",
		cmds.WithFlags(
			parameters.NewParameterDefinition(
				"of-provider",
				parameters.ParameterTypeString,
				parameters.WithHelp("Only list models of this provider"),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &ModelsListCommand{CommandDescription: description}, nil
}

func (c *ModelsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &ModelsListSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	return addRows(ctx, gp, modelListRows(cat, s.Provider))
}

// modelListRows lists the catalog models with their provider, optionally
// restricted to one provider.
func modelListRows(cat *catalog.Catalog, provider string) []types.Row {
	models := cat.GetAllModelList()
	if provider != "" {
		models = cat.GetModelsByProvider()[provider]
	}

	ret := make([]types.Row, 0, len(models))
	for _, m := range models {
		p := provider
		if info, err := cat.GetModelInfo(m); err == nil && info.Provider != "" {
			p = info.Provider
		}
		ret = append(ret, types.NewRow(
			types.MRP("model", m),
			types.MRP("provider", p),
		))
	}
	return ret
}

type ModelsInfoSettings struct {
	Models []string `glazed.parameter:"models"`
}

type ModelsInfoCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsInfoCommand)(nil)

func NewModelsInfoCommand() (*ModelsInfoCommand, error) {
	description, err := newGlazedDescription("info", "Print the catalog entry of models",
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"models",
				parameters.ParameterTypeStringList,
				parameters.WithHelp("Model names"),
				parameters.WithRequired(true),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &ModelsInfoCommand{CommandDescription: description}, nil
}

func (c *ModelsInfoCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &ModelsInfoSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	rows, err := modelInfoRows(cat, s.Models)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, rows)
}

func modelInfoRows(cat *catalog.Catalog, models []string) ([]types.Row, error) {
	ret := make([]types.Row, 0, len(models))
	for _, name := range models {
		info, err := cat.GetModelInfo(name)
		if err != nil {
			return nil, err
		}
		row := types.NewRow(
			types.MRP("model", name),
			types.MRP("provider", info.Provider),
		)
		if info.MaxTokens != nil {
			row.Set("max_tokens", *info.MaxTokens)
		}
		if info.InputCostPerToken != nil {
			row.Set("input_cost_per_token", *info.InputCostPerToken)
		}
		if info.OutputCostPerToken != nil {
			row.Set("output_cost_per_token", *info.OutputCostPerToken)
		}
		ret = append(ret, row)
	}
	return ret, nil
}

type ModelsMaxTokensSettings struct {
	Model string `glazed.parameter:"model-name"`
}

type ModelsMaxTokensCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsMaxTokensCommand)(nil)

func NewModelsMaxTokensCommand() (*ModelsMaxTokensCommand, error) {
	description, err := newGlazedDescription("max-tokens", "Print the context size of a model",
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"model-name",
				parameters.ParameterTypeString,
				parameters.WithHelp("Model name"),
				parameters.WithRequired(true),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &ModelsMaxTokensCommand{CommandDescription: description}, nil
}

func (c *ModelsMaxTokensCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &ModelsMaxTokensSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	n, err := cat.GetModelMaxTokens(s.Model)
	if err != nil {
		return err
	}
	return gp.AddRow(ctx, types.NewRow(
		types.MRP("model", s.Model),
		types.MRP("max_tokens", n),
	))
}

type ModelsProvidersCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsProvidersCommand)(nil)

func NewModelsProvidersCommand() (*ModelsProvidersCommand, error) {
	description, err := newGlazedDescription("providers", "List providers with their model count")
	if err != nil {
		return nil, err
	}
	return &ModelsProvidersCommand{CommandDescription: description}, nil
}

func (c *ModelsProvidersCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	return addRows(ctx, gp, providerRows(cat))
}

func providerRows(cat *catalog.Catalog) []types.Row {
	byProvider := cat.GetModelsByProvider()
	ret := []types.Row{}
	for _, p := range cat.Providers() {
		ret = append(ret, types.NewRow(
			types.MRP("provider", p),
			types.MRP("models", len(byProvider[p])),
		))
	}
	return ret
}

type ModelsCostSettings struct {
	Model            string `glazed.parameter:"model-name"`
	PromptTokens     int    `glazed.parameter:"prompt-tokens"`
	CompletionTokens int    `glazed.parameter:"completion-tokens"`
}

type ModelsCostCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsCostCommand)(nil)

func NewModelsCostCommand() (*ModelsCostCommand, error) {
	description, err := newGlazedDescription("cost", "Estimate the cost of a call from its token counts",
		cmds.WithFlags(
			parameters.NewParameterDefinition(
				"prompt-tokens",
				parameters.ParameterTypeInteger,
				parameters.WithHelp("Prompt tokens"),
				parameters.WithDefault(0),
			),
			parameters.NewParameterDefinition(
				"completion-tokens",
				parameters.ParameterTypeInteger,
				parameters.WithHelp("Completion tokens"),
				parameters.WithDefault(0),
			),
		),
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"model-name",
				parameters.ParameterTypeString,
				parameters.WithHelp("Model name"),
				parameters.WithRequired(true),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &ModelsCostCommand{CommandDescription: description}, nil
}

func (c *ModelsCostCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &ModelsCostSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	row, err := costRow(cat, s.Model, s.PromptTokens, s.CompletionTokens)
	if err != nil {
		return err
	}
	return gp.AddRow(ctx, row)
}

func costRow(cat *catalog.Catalog, model string, promptTokens int, completionTokens int) (types.Row, error) {
	cost, err := cat.EstimateCost(model, map[string]interface{}{
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
	})
	if err != nil {
		return nil, err
	}
	return types.NewRow(
		types.MRP("model", model),
		types.MRP("prompt_tokens", promptTokens),
		types.MRP("completion_tokens", completionTokens),
		types.MRP("cost", fmt.Sprintf("%.6f", cost)),
	), nil
}
