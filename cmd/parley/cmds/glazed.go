package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
)

func buildGlazeCommand(c cmds.GlazeCommand, err error) *cobra.Command {
	cobra.CheckErr(err)
	ret, err := cli.BuildCobraCommandFromGlazeCommand(c)
	cobra.CheckErr(err)
	return ret
}

func buildWriterCommand(c cmds.WriterCommand, err error) *cobra.Command {
	cobra.CheckErr(err)
	ret, err := cli.BuildCobraCommandFromWriterCommand(c)
	cobra.CheckErr(err)
	return ret
}

func addRows(ctx context.Context, gp middlewares.Processor, rows []types.Row) error {
	for _, row := range rows {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
