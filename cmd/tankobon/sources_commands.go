package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tankobon/internal/sources"
)

var errNoSources = errors.New("no sources configured; add a [[sources]] block to the config")

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured manga sources",
	}

	sourcesCmd.AddCommand(newSourcesListCommand(ctx))
	sourcesCmd.AddCommand(newSourcesSearchCommand(ctx))
	sourcesCmd.AddCommand(newSourcesChaptersCommand(ctx))

	return sourcesCmd
}

func newSourcesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				type sourceView struct {
					ID      string `json:"id"`
					Name    string `json:"name"`
					BaseURL string `json:"base_url"`
				}
				views := make([]sourceView, 0, len(cfg.Sources))
				for _, src := range cfg.Sources {
					views = append(views, sourceView{ID: src.ID, Name: src.Name, BaseURL: src.BaseURL})
				}
				return writeJSON(cmd, views)
			}
			if len(cfg.Sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources configured")
				return nil
			}
			rows := make([][]string, 0, len(cfg.Sources))
			for _, src := range cfg.Sources {
				rows = append(rows, []string{src.ID, src.Name, src.BaseURL, yesNo(src.ReverseChapters)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{left("ID"), left("Name"), left("Base URL"), left("Reversed")}, rows))
			return nil
		},
	}
}

func (c *commandContext) source(id string) (sources.Source, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	registry := sources.NewRegistryFromConfig(cfg, c.cliLogger())
	if registry.Len() == 0 {
		return nil, errNoSources
	}
	return registry.Get(strings.TrimSpace(id))
}

func newSourcesSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <source> <query>",
		Short: "Search a source for manga titles",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := ctx.source(args[0])
			if err != nil {
				return err
			}
			results, err := src.Search(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for i, manga := range results {
				rows = append(rows, []string{strconv.Itoa(i + 1), manga.Title, manga.ID})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{right("#"), titled("Title"), left("ID")}, rows))
			return nil
		},
	}
}

func newSourcesChaptersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <source> <manga-id>",
		Short: "List the chapters of a manga",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := ctx.source(args[0])
			if err != nil {
				return err
			}
			chapters, err := src.ListChapters(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, chapters)
			}
			if len(chapters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No chapters")
				return nil
			}
			rows := make([][]string, 0, len(chapters))
			for i, ch := range chapters {
				rows = append(rows, []string{strconv.Itoa(i + 1), ch.Title, ch.ID})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{right("#"), titled("Title"), left("ID")}, rows))
			return nil
		},
	}
}
