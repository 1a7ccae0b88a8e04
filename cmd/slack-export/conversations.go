package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/slack-exporter/pkg/export"
	"github.com/Sternrassler/slack-exporter/pkg/pagination"
	"github.com/Sternrassler/slack-exporter/pkg/users"
)

func newConversationsCmd(a *app) *cobra.Command {
	var types string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations visible to the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := a.cfg.Types()
			if types != "" {
				list = strings.Split(types, ",")
			}
			return a.runConversations(cmd.Context(), list)
		},
	}
	cmd.Flags().StringVar(&types, "types", "", "comma-separated conversation types (default from config)")

	return cmd
}

func (a *app) runConversations(ctx context.Context, types []string) error {
	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	dir, _, err := eng.users.Load(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("User directory unavailable, direct messages show user ids")
		dir = users.NewDirectory(nil)
	}

	exporter := export.New(eng.fetcher, nil, export.Config{})
	conversations, err := exporter.Conversations(ctx, types)
	if err != nil {
		return err
	}

	renderConversations(a, conversations, func(id string) string {
		if name, ok := dir.Lookup(id); ok {
			return name
		}
		return id
	})
	return nil
}

func renderConversations(a *app, conversations []pagination.Record, names func(string) string) {
	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Type", "ID", "Members"})

	for _, c := range conversations {
		t.AppendRow(table.Row{
			export.ConversationName(c, names),
			export.ConversationType(c),
			c.String("id"),
			c.String("num_members"),
		})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(conversations)})
	t.Render()
}
