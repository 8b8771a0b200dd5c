package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-latent/runstore"
	"github.com/tsawler/go-latent/tables"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *runstore.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}

				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						string(run.Status),
						run.StartedAt.Local().Format("2006-01-02 15:04"),
						runDuration(run),
						run.Device,
						strconv.Itoa(run.LatentDim),
						strconv.Itoa(run.Epochs),
						formatF1(run.F1),
					})
				}
				fmt.Fprintln(out, tables.Render([]tables.Column{
					tables.Left("ID"),
					tables.Left("Status"),
					tables.Left("Started"),
					tables.Right("Duration"),
					tables.Left("Device"),
					tables.Right("Latent"),
					tables.Right("Epochs"),
					tables.Right("F1"),
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's epoch losses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *runstore.Store) error {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				epochs, err := store.Epochs(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Status)
				fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "F1:      %s\n", formatF1(run.F1))
				if run.Error != "" {
					fmt.Fprintf(out, "Error:   %s\n", run.Error)
				}

				rows := make([][]string, 0, len(epochs))
				for _, e := range epochs {
					rows = append(rows, []string{
						strconv.Itoa(e.Epoch + 1),
						fmt.Sprintf("%.4f", e.TrainLoss),
						fmt.Sprintf("%.4f", e.ValLoss),
						e.Duration.Round(time.Millisecond).String(),
					})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, tables.Render([]tables.Column{
						tables.Right("Epoch"),
						tables.Right("Train Loss"),
						tables.Right("Val Loss"),
						tables.Right("Time"),
					}, rows))
				}
				return nil
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run runstore.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}

func formatF1(f1 *float64) string {
	if f1 == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *f1)
}
