package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tiktoken-go/tokenizer"

	"github.com/go-go-golems/parley/pkg/tokens"
)

func NewTokensCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Count, encode and decode tokens",
	}

	cmd.AddCommand(
		buildGlazeCommand(NewCountCommand()),
		buildWriterCommand(NewEncodeCommand()),
		buildWriterCommand(NewDecodeCommand()),
		buildGlazeCommand(NewListEncodingsCommand()),
	)
	return cmd
}

func tokenizerFlags() cmds.CommandDescriptionOption {
	return cmds.WithFlags(
		parameters.NewParameterDefinition(
			"tokenizer-model",
			parameters.ParameterTypeString,
			parameters.WithHelp("Model whose tokenizer is used"),
		),
		parameters.NewParameterDefinition(
			"encoding",
			parameters.ParameterTypeString,
			parameters.WithHelp("Encoding used when the model has no tokenizer (default cl100k_base)"),
		),
	)
}

// readInputs returns the content of every file, or of stdin for none or "-".
func readInputs(stdin io.Reader, files []string) ([]string, []string, error) {
	if len(files) == 0 {
		files = []string{"-"}
	}
	contents := make([]string, 0, len(files))
	for _, f := range files {
		var b []byte
		var err error
		if f == "-" {
			b, err = io.ReadAll(stdin)
		} else {
			b, err = os.ReadFile(f)
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "could not read %s", f)
		}
		contents = append(contents, string(b))
	}
	return files, contents, nil
}

type CountSettings struct {
	Model    string   `glazed.parameter:"tokenizer-model"`
	Encoding string   `glazed.parameter:"encoding"`
	Files    []string `glazed.parameter:"files"`
}

type CountCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CountCommand)(nil)

func NewCountCommand() (*CountCommand, error) {
	description, err := newGlazedDescription("count", "Count the tokens of files or stdin",
		tokenizerFlags(),
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"files",
				parameters.ParameterTypeStringList,
				parameters.WithHelp("Input files, stdin when empty"),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &CountCommand{CommandDescription: description}, nil
}

func (c *CountCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &CountSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	counter, err := tokens.NewCounter(s.Model, s.Encoding)
	if err != nil {
		return err
	}
	sources, contents, err := readInputs(os.Stdin, s.Files)
	if err != nil {
		return err
	}
	rows, err := countRows(counter, sources, contents)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, rows)
}

func countRows(counter *tokens.Counter, sources []string, contents []string) ([]types.Row, error) {
	ret := make([]types.Row, 0, len(contents))
	for i, content := range contents {
		n, err := counter.Count(content)
		if err != nil {
			return nil, err
		}
		ret = append(ret, types.NewRow(
			types.MRP("source", sources[i]),
			types.MRP("encoding", counter.Encoding()),
			types.MRP("tokens", n),
		))
	}
	return ret, nil
}

type EncodeSettings struct {
	Model    string   `glazed.parameter:"tokenizer-model"`
	Encoding string   `glazed.parameter:"encoding"`
	Files    []string `glazed.parameter:"files"`
}

type EncodeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*EncodeCommand)(nil)

func NewEncodeCommand() (*EncodeCommand, error) {
	return &EncodeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"encode",
			cmds.WithShort("Print the token ids of files or stdin"),
			tokenizerFlags(),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"files",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Input files, stdin when empty"),
				),
			),
		),
	}, nil
}

func (c *EncodeCommand) RunIntoWriter(ctx context.Context, parsedLayers *layers.ParsedLayers, w io.Writer) error {
	s := &EncodeSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	counter, err := tokens.NewCounter(s.Model, s.Encoding)
	if err != nil {
		return err
	}
	_, contents, err := readInputs(os.Stdin, s.Files)
	if err != nil {
		return err
	}
	for _, content := range contents {
		ids, _, err := counter.Encode(content)
		if err != nil {
			return errors.Wrap(err, "could not encode input")
		}
		if _, err := fmt.Fprintln(w, formatIDs(ids)); err != nil {
			return err
		}
	}
	return nil
}

type DecodeSettings struct {
	Model    string   `glazed.parameter:"tokenizer-model"`
	Encoding string   `glazed.parameter:"encoding"`
	IDs      []string `glazed.parameter:"ids"`
}

type DecodeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*DecodeCommand)(nil)

func NewDecodeCommand() (*DecodeCommand, error) {
	return &DecodeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"decode",
			cmds.WithShort("Decode token ids back into text"),
			tokenizerFlags(),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"ids",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Token ids, separate or comma separated"),
					parameters.WithRequired(true),
				),
			),
		),
	}, nil
}

func (c *DecodeCommand) RunIntoWriter(ctx context.Context, parsedLayers *layers.ParsedLayers, w io.Writer) error {
	s := &DecodeSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	counter, err := tokens.NewCounter(s.Model, s.Encoding)
	if err != nil {
		return err
	}
	ids, err := parseIDs(s.IDs)
	if err != nil {
		return err
	}
	text, err := counter.Decode(ids)
	if err != nil {
		return errors.Wrap(err, "could not decode ids")
	}
	_, err = fmt.Fprintln(w, text)
	return err
}

type ListEncodingsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListEncodingsCommand)(nil)

func NewListEncodingsCommand() (*ListEncodingsCommand, error) {
	description, err := newGlazedDescription("list-encodings", "List the available encodings")
	if err != nil {
		return nil, err
	}
	return &ListEncodingsCommand{CommandDescription: description}, nil
}

func (c *ListEncodingsCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	for _, e := range []tokenizer.Encoding{
		tokenizer.R50kBase,
		tokenizer.P50kBase,
		tokenizer.P50kEdit,
		tokenizer.Cl100kBase,
	} {
		row := types.NewRow(
			types.MRP("encoding", string(e)),
			types.MRP("default", e == tokens.DefaultEncoding),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func formatIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, " ")
}

// parseIDs accepts ids as separate arguments or comma/space separated.
func parseIDs(args []string) ([]uint, error) {
	ret := []uint{}
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid token id %q", field)
			}
			ret = append(ret, uint(id))
		}
	}
	return ret, nil
}
