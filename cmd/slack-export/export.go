package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/slack-exporter/pkg/export"
	"github.com/Sternrassler/slack-exporter/pkg/metrics"
	"github.com/Sternrassler/slack-exporter/pkg/pagination"
)

type exportFlags struct {
	messages       bool
	reactions      bool
	members        bool
	graph          bool
	fetchReactions bool
	channel        string
}

func newExportCmd(a *app) *cobra.Command {
	var f exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export conversations to CSV",
		Long: `Export messages, reactions and members of every conversation of the
configured types, or of a single conversation with --channel.

Without --messages, --reactions or --members everything is exported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runExport(cmd.Context(), f)
		},
	}

	cmd.Flags().BoolVar(&f.messages, "messages", false, "export messages")
	cmd.Flags().BoolVar(&f.reactions, "reactions", false, "export reactions (implies --messages)")
	cmd.Flags().BoolVar(&f.members, "members", false, "export members")
	cmd.Flags().BoolVar(&f.graph, "graph", false, "write members as pairs of users sharing a conversation (implies --members)")
	cmd.Flags().BoolVar(&f.fetchReactions, "fetch-reactions", false, "ask reactions.get instead of using reactions embedded in the history")
	cmd.Flags().StringVar(&f.channel, "channel", "", "export only this conversation (name or id)")

	return cmd
}

func (f exportFlags) options() export.Options {
	opts := export.Options{
		Messages:       f.messages || f.reactions,
		Reactions:      f.reactions,
		Members:        f.members || f.graph,
		Graph:          f.graph,
		FetchReactions: f.fetchReactions,
	}
	if !opts.Messages && !opts.Members {
		opts.Messages = true
		opts.Reactions = true
		opts.Members = true
	}
	return opts
}

func (a *app) runExport(ctx context.Context, f exportFlags) error {
	opts := f.options()
	oldest, latest, err := a.cfg.Window()
	if err != nil {
		return err
	}
	opts.Oldest, opts.Latest = oldest, latest

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	if addr := a.cfg.Metrics.Addr; addr != "" {
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := metrics.Serve(metricsCtx, addr); err != nil {
				a.logger.Warn().Err(err).Str("addr", addr).Msg("Metrics server failed")
			}
		}()
	}

	dir, source, err := eng.users.Load(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	a.logger.Info().Str("source", string(source)).Int("users", dir.Len()).Msg("User directory ready")

	exporter := export.New(eng.fetcher, func(ctx context.Context, id string) string {
		return eng.users.Resolve(ctx, dir, id)
	}, export.Config{
		DataFolder: a.cfg.DataFolder,
		Workers:    a.cfg.Concurrency,
		Location:   loc,
	})

	conversations, err := exporter.Conversations(ctx, a.cfg.Types())
	if err != nil {
		return err
	}
	if f.channel != "" {
		conversation, ok := export.FindConversation(conversations, f.channel)
		if !ok {
			return fmt.Errorf("conversation %q not found", f.channel)
		}
		conversations = []pagination.Record{conversation}
		opts.Single = true
	}

	a.logger.Info().
		Str("run_id", a.runID).
		Int("conversations", len(conversations)).
		Msg("Export started")

	result, err := exporter.Export(ctx, conversations, opts)
	eng.progress.done()
	a.printResult(result)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("export interrupted: %w", err)
		}
		return err
	}
	return nil
}

func (a *app) printResult(r export.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Conversations", "Failed", "Messages", "Reactions", "Members", "Duration"})
	t.AppendRow(table.Row{r.Conversations, r.Failed, r.Messages, r.Reactions, r.Members, r.Duration.Round(time.Millisecond)})
	t.Render()

	for _, file := range r.Files {
		fmt.Fprintln(a.out, file)
	}
}
