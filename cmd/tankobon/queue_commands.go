package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"tankobon/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					out := make(map[string]int, len(stats))
					for status, count := range stats {
						out[string(status)] = count
					}
					return writeJSON(cmd, out)
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{left("Status"), right("Count")}, rows))
				return nil
			})
		},
	}
}

func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	statuses := make([]string, 0, len(stats))
	for status, count := range stats {
		if count > 0 {
			statuses = append(statuses, string(status))
		}
	}
	sort.Strings(statuses)
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{status, strconv.Itoa(stats[queue.Status(status)])})
	}
	return rows
}

type queueJobView struct {
	ID        int64   `json:"id"`
	Requester int64   `json:"requester_id"`
	Source    string  `json:"source_id"`
	Chapter   string  `json:"chapter_id"`
	Title     string  `json:"title"`
	Format    string  `json:"format"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress_percent"`
	Error     string  `json:"error,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					views := make([]queueJobView, 0, len(jobs))
					for _, job := range jobs {
						views = append(views, jobView(job))
					}
					return writeJSON(cmd, views)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{right("ID"), right("Requester"), titled("Title"), left("Format"), left("Status"), right("Progress"), left("Created")},
					buildQueueListRows(jobs, isTerminal(cmd.OutOrStdout())),
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func jobView(job *queue.Job) queueJobView {
	return queueJobView{
		ID:        job.ID,
		Requester: job.RequesterID,
		Source:    job.SourceID,
		Chapter:   job.ChapterID,
		Title:     job.DisplayTitle(),
		Format:    job.Format,
		Status:    string(job.Status),
		Progress:  job.ProgressPercent(),
		Error:     job.ErrorMessage,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
}

var statusColors = map[queue.Status]text.Colors{
	queue.StatusDone:       {text.FgGreen},
	queue.StatusFailed:     {text.FgRed},
	queue.StatusFetching:   {text.FgCyan},
	queue.StatusPacking:    {text.FgCyan},
	queue.StatusDelivering: {text.FgCyan},
}

func buildQueueListRows(jobs []*queue.Job, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		status := string(job.Status)
		if job.Status == queue.StatusFailed && job.ErrorMessage != "" {
			status = status + ": " + job.ErrorMessage
		}
		if colors, ok := statusColors[job.Status]; ok && colorize {
			status = colors.Sprint(status)
		}
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			strconv.FormatInt(job.RequesterID, 10),
			job.DisplayTitle(),
			strings.ToUpper(job.Format),
			status,
			fmt.Sprintf("%.0f%%", job.ProgressPercent()),
			job.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove jobs that are not waiting to run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Removed %d of %d jobs\n", removed, len(ids))
				if removed < int64(len(ids)) {
					fmt.Fprintln(out, "Jobs still queued or running are kept; cancel them from the chat with /cancel")
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				cleared, err := store.ClearTerminal(cmd.Context())
				if err != nil {
					return err
				}
				if cleared == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No finished jobs to clear")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished jobs\n", cleared)
				return nil
			})
		},
	}
}
