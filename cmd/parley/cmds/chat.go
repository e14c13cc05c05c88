package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/engine"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/helpers"
	"github.com/go-go-golems/parley/pkg/settings"
	"github.com/go-go-golems/parley/pkg/usage"
)

const (
	queryTopic = "queries"
	usageTopic = "usage"
)

var (
	promptColor     = color.New(color.FgCyan, color.Bold)
	usageColor      = color.New(color.Faint)
	okColor         = color.New(color.FgGreen)
	correctionColor = color.New(color.FgYellow)
)

type chatOptions struct {
	query   string
	image   string
	system  string
	events  bool
	history string
	save    string
}

func NewChatCommand() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured model",
		Long: `Chat with the configured model. With --query a single question is asked,
otherwise questions are read line by line from stdin.

In interactive mode, /reset clears the conversation, /json and /history print
it and /quit exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), s, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Ask a single question and exit")
	cmd.Flags().StringVar(&opts.image, "image", "", "Image path or URL attached to --query")
	cmd.Flags().StringVar(&opts.system, "system", "", "Additional system context")
	cmd.Flags().BoolVar(&opts.events, "events", false, "Print conversation events to stderr")
	cmd.Flags().StringVar(&opts.history, "history", "", "Load a conversation (JSON or YAML) before asking")
	cmd.Flags().StringVar(&opts.save, "save", "", "Save the conversation as JSON on exit")

	return cmd
}

func runChat(ctx context.Context, s *settings.Settings, opts *chatOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cat, err := s.LoadCatalog()
	if err != nil {
		return err
	}

	stats, closer, err := settings.NewUsageStats(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close usage sink")
		}
	}()

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	var sinks []events.EventSink
	if opts.events {
		router.AddHandler("printer", queryTopic, events.PrinterFunc(os.Stderr))
		sinks = append(sinks, events.NewWatermillSink(router.Publisher, queryTopic))
	}
	router.AddHandler("usage-log", usageTopic, logUsage)

	accountant := usage.NewAccountant(
		usage.WithStats(stats),
		usage.WithCallback(usage.PublishingCallback(router.Publisher, usageTopic)),
	)

	c, err := settings.NewConversation(s, cat, accountant, sinks...)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()

		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}

		ok, err := c.SetAPIKey(ctx, s.APIKey, s.User)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("could not authenticate against %s", s.Provider)
		}

		c.Setup(opts.system)
		if opts.history != "" {
			if err := loadHistory(c, opts.history); err != nil {
				return err
			}
		}

		if opts.query != "" {
			err = ask(ctx, c, opts.query, opts.image, out)
		} else {
			err = repl(ctx, c, opts.system, in, out)
		}
		if err != nil {
			return err
		}

		if opts.save != "" {
			return c.Messages.SaveToFile(opts.save)
		}
		return nil
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadHistory appends a saved conversation after the configured prompts.
func loadHistory(c *engine.Conversation, path string) error {
	l, err := conversation.LoadFromFile(path)
	if err != nil {
		return err
	}
	c.Messages.Append(l.Messages()...)
	log.Debug().Str("path", path).Int("messages", l.Len()).Msg("loaded conversation")
	return nil
}

// repl reads one question per line. /reset starts over with the same system
// context, /json and /history print the conversation.
func repl(ctx context.Context, c *engine.Conversation, system string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		_, _ = promptColor.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			c.Reset()
			c.Setup(system)
			continue
		case "/history":
			_, _ = fmt.Fprint(out, c.Messages.Messages().Transcript())
			continue
		case "/json":
			s, err := c.MessagesJSON()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, s)
			continue
		}

		if err := ask(ctx, c, line, "", out); err != nil {
			// keep the session alive, the human message stays in the log
			log.Error().Err(err).Msg("query failed")
		}
	}
	return scanner.Err()
}

func ask(ctx context.Context, c *engine.Conversation, text string, image string, out io.Writer) error {
	resp, err := c.Query(ctx, text, image)
	if err != nil {
		return err
	}

	var cost *float64
	if len(resp.TokenUsage) > 0 {
		if estimate, err := c.EstimateCost(c.ModelName, resp.TokenUsage); err == nil {
			cost = &estimate
		} else {
			log.Debug().Err(err).Str("model", c.ModelName).Msg("no cost estimate")
		}
	}
	printResponse(out, resp, cost)
	return nil
}

func printResponse(out io.Writer, resp *engine.Response, cost *float64) {
	_, _ = fmt.Fprintln(out, resp.Answer)
	if len(resp.TokenUsage) > 0 {
		line := formatTokenUsage(resp.TokenUsage)
		if cost != nil {
			line += fmt.Sprintf(" cost=$%.6f", *cost)
		}
		_, _ = usageColor.Fprintln(out, line)
	}
	if resp.Correction == nil {
		return
	}
	if strings.EqualFold(strings.TrimSpace(*resp.Correction), engine.NoCorrection) {
		_, _ = okColor.Fprintln(out, "correction: OK")
		return
	}
	_, _ = correctionColor.Fprintf(out, "correction: %s\n", *resp.Correction)
}

func formatTokenUsage(tokenUsage map[string]interface{}) string {
	numeric := usage.Numeric(tokenUsage)
	parts := []string{}
	for _, k := range []string{"prompt_tokens", "completion_tokens", "total_tokens"} {
		if v, ok := numeric[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", k, int64(v)))
		}
	}
	if len(parts) == 0 {
		return "usage: n/a"
	}
	return "usage: " + strings.Join(parts, " ")
}

func logUsage(msg *message.Message) error {
	defer msg.Ack()
	log.Debug().
		Str("user", msg.Metadata.Get("user")).
		Str("model", msg.Metadata.Get("model")).
		Str("correlation_id", helpers.CorrelationID(msg)).
		RawJSON("usage", msg.Payload).
		Msg("usage recorded")
	return nil
}
