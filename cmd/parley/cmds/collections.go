package cmds

import (
	"context"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/parley/pkg/settings"
	"github.com/go-go-golems/parley/pkg/vectorstore"
)

func connectVectorHost(ctx context.Context) (*vectorstore.Host, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return settings.NewVectorHost(ctx, s)
}

func NewCollectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage the document collections of the vector store",
	}

	cmd.AddCommand(
		buildGlazeCommand(NewCollectionsListCommand()),
		buildGlazeCommand(NewCollectionsAddCommand()),
		buildGlazeCommand(NewCollectionsSearchCommand()),
		buildGlazeCommand(NewCollectionsDropCommand()),
	)
	return cmd
}

type CollectionsListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CollectionsListCommand)(nil)

func NewCollectionsListCommand() (*CollectionsListCommand, error) {
	description, err := newGlazedDescription("list", "List the collections")
	if err != nil {
		return nil, err
	}
	return &CollectionsListCommand{CommandDescription: description}, nil
}

func (c *CollectionsListCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	host, err := connectVectorHost(ctx)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, collectionRows(host.Collections()))
}

func collectionRows(collections []vectorstore.Collection) []types.Row {
	ret := make([]types.Row, 0, len(collections))
	for _, c := range collections {
		ret = append(ret, collectionRow(c))
	}
	return ret
}

func collectionRow(c vectorstore.Collection) types.Row {
	return types.NewRow(
		types.MRP("document", c.DocumentName),
		types.MRP("collection", c.Name),
		types.MRP("alias", c.Alias),
	)
}

type CollectionsAddSettings struct {
	DocumentName string `glazed.parameter:"document-name"`
	File         string `glazed.parameter:"file"`
}

type CollectionsAddCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CollectionsAddCommand)(nil)

func NewCollectionsAddCommand() (*CollectionsAddCommand, error) {
	description, err := newGlazedDescription("add", "Embed a text file paragraph by paragraph into a new collection",
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"document-name",
				parameters.ParameterTypeString,
				parameters.WithHelp("Name of the document"),
				parameters.WithRequired(true),
			),
			parameters.NewParameterDefinition(
				"file",
				parameters.ParameterTypeString,
				parameters.WithHelp("Text file to embed"),
				parameters.WithRequired(true),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &CollectionsAddCommand{CommandDescription: description}, nil
}

func (c *CollectionsAddCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &CollectionsAddSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}

	b, err := os.ReadFile(s.File)
	if err != nil {
		return errors.Wrapf(err, "could not read %s", s.File)
	}
	docs := splitParagraphs(string(b), s.File)
	if len(docs) == 0 {
		return errors.Errorf("%s has no text", s.File)
	}

	host, err := connectVectorHost(ctx)
	if err != nil {
		return err
	}
	collection, err := host.StoreEmbedding(ctx, s.DocumentName, docs)
	if err != nil {
		return err
	}

	row := collectionRow(*collection)
	row.Set("chunks", len(docs))
	return gp.AddRow(ctx, row)
}

type CollectionsSearchSettings struct {
	Collection string `glazed.parameter:"collection"`
	Query      string `glazed.parameter:"query"`
	K          int    `glazed.parameter:"k"`
}

type CollectionsSearchCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CollectionsSearchCommand)(nil)

func NewCollectionsSearchCommand() (*CollectionsSearchCommand, error) {
	description, err := newGlazedDescription("search", "Search a collection for documents similar to query",
		cmds.WithFlags(
			parameters.NewParameterDefinition(
				"k",
				parameters.ParameterTypeInteger,
				parameters.WithHelp("Number of results"),
				parameters.WithDefault(4),
			),
		),
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"collection",
				parameters.ParameterTypeString,
				parameters.WithHelp("Collection name"),
				parameters.WithRequired(true),
			),
			parameters.NewParameterDefinition(
				"query",
				parameters.ParameterTypeString,
				parameters.WithHelp("Search text"),
				parameters.WithRequired(true),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &CollectionsSearchCommand{CommandDescription: description}, nil
}

func (c *CollectionsSearchCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &CollectionsSearchSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}

	host, err := connectVectorHost(ctx)
	if err != nil {
		return err
	}
	results, err := host.SimilaritySearch(ctx, s.Collection, s.Query, s.K)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNoCollection) {
			return errors.Errorf("unknown collection %s", s.Collection)
		}
		return err
	}
	return addRows(ctx, gp, searchRows(results))
}

func searchRows(results []vectorstore.SearchResult) []types.Row {
	ret := make([]types.Row, 0, len(results))
	for i, r := range results {
		row := types.NewRow(
			types.MRP("rank", i+1),
			types.MRP("distance", r.Distance),
			types.MRP("content", r.Content),
		)
		if source, ok := r.Metadata["source"]; ok {
			row.Set("source", source)
		}
		ret = append(ret, row)
	}
	return ret
}

type CollectionsDropSettings struct {
	Collections []string `glazed.parameter:"collections"`
}

type CollectionsDropCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CollectionsDropCommand)(nil)

func NewCollectionsDropCommand() (*CollectionsDropCommand, error) {
	description, err := newGlazedDescription("drop", "Delete collections",
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"collections",
				parameters.ParameterTypeStringList,
				parameters.WithHelp("Collection names"),
				parameters.WithRequired(true),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &CollectionsDropCommand{CommandDescription: description}, nil
}

func (c *CollectionsDropCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &CollectionsDropSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}

	host, err := connectVectorHost(ctx)
	if err != nil {
		return err
	}
	for _, name := range s.Collections {
		if err := host.DropCollection(ctx, name); err != nil {
			return err
		}
		if err := gp.AddRow(ctx, types.NewRow(
			types.MRP("collection", name),
			types.MRP("dropped", true),
		)); err != nil {
			return err
		}
	}
	return nil
}

// splitParagraphs chunks text on blank lines.
func splitParagraphs(text string, source string) []vectorstore.Document {
	ret := []vectorstore.Document{}
	for i, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ret = append(ret, vectorstore.Document{
			Content: p,
			Metadata: map[string]interface{}{
				"source":    source,
				"paragraph": i,
			},
		})
	}
	return ret
}
