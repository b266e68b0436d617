package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tankobon/internal/archive"
	"tankobon/internal/config"
	"tankobon/internal/fetch"
	"tankobon/internal/logging"
	"tankobon/internal/textutil"
)

func newPackCommand(ctx *commandContext) *cobra.Command {
	var (
		formatName string
		outputDir  string
		title      string
		pageURLs   []string
		urlsFile   string
	)

	cmd := &cobra.Command{
		Use:   "pack [<source> <chapter-id>]",
		Short: "Fetch one chapter and pack it into a local file",
		Long: `Fetch one chapter and pack it into a local file.

Pages come from a configured source when <source> and <chapter-id> are given,
or directly from --url flags and --urls-file (one URL per line).`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			format, err := archive.ParseFormat(formatName)
			if err != nil {
				return err
			}
			packer, err := archive.DefaultRegistry().Get(format)
			if err != nil {
				return err
			}

			urls, err := collectPageURLs(pageURLs, urlsFile)
			if err != nil {
				return err
			}
			switch {
			case len(urls) > 0 && len(args) > 0:
				return errors.New("pass either <source> <chapter-id> or page URLs, not both")
			case len(urls) == 0 && len(args) != 2:
				return errors.New("pack needs <source> <chapter-id>, --url or --urls-file")
			case len(urls) == 0:
				src, err := ctx.source(args[0])
				if err != nil {
					return err
				}
				if urls, err = src.ListPages(cmd.Context(), args[1]); err != nil {
					return err
				}
			}
			if len(urls) == 0 {
				return errors.New("chapter has no pages")
			}

			dir := strings.TrimSpace(outputDir)
			if dir == "" {
				dir = "."
			}
			if dir, err = config.ExpandPath(dir); err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			fetcher := fetch.NewFromConfig(cfg, ctx.cliLogger())
			progress := newPageProgress(cmd.ErrOrStderr(), len(urls), "Fetching pages")
			slots := fetcher.Fetch(cmd.Context(), urls, progress.Update)
			progress.Finish()
			if err := fetch.Summarize(slots); err != nil {
				return err
			}

			pages := make([]archive.Page, len(slots))
			for i, slot := range slots {
				pages[i] = archive.Page{Data: slot.Data, Ext: archive.ExtensionFor(slot.URL, slot.ContentType, slot.Data)}
			}

			if strings.TrimSpace(title) == "" && len(args) == 2 {
				title = filepath.Base(strings.TrimRight(args[1], "/"))
			}
			dest := filepath.Join(dir, textutil.ArtifactBaseName(title)+format.Extension())
			artifact, err := packer.Pack(cmd.Context(), pages, dest)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"path":   artifact.Path,
					"format": string(artifact.Format),
					"pages":  artifact.Entries,
					"bytes":  artifact.Size,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d pages into %s (%s)\n",
				artifact.Entries, artifact.Path, logging.FormatBytes(artifact.Size))
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", string(archive.FormatArchive), "Output format (cbz or pdf)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for the packed file (default: current directory)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "File name title (default: last segment of the chapter id)")
	cmd.Flags().StringSliceVar(&pageURLs, "url", nil, "Page image URL in reading order (repeatable)")
	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "File with one page image URL per line")
	return cmd
}

// collectPageURLs merges --url values with the lines of urlsFile, keeping
// order. Blank lines and # comments are skipped.
func collectPageURLs(flagURLs []string, urlsFile string) ([]string, error) {
	var urls []string
	for _, u := range flagURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if strings.TrimSpace(urlsFile) == "" {
		return urls, nil
	}
	path, err := config.ExpandPath(urlsFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, nil
}
