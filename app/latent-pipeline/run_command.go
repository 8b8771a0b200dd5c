package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-latent/config"
	"github.com/tsawler/go-latent/pipeline"
	"github.com/tsawler/go-latent/runstore"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dataRoot string
	var epochs int
	var noStore bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train the autoencoder, extract latents and report classifier F1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *loaded
			if root := strings.TrimSpace(dataRoot); root != "" {
				expanded, err := config.ExpandPath(root)
				if err != nil {
					return fmt.Errorf("resolve data root: %w", err)
				}
				cfg.Data.Root = expanded
			}
			if epochs > 0 {
				cfg.Training.NumEpochs = epochs
			}
			if cfg.Data.Root == "" {
				return fmt.Errorf("no dataset: set data.root in the config or pass --data")
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			opts := pipeline.Options{
				Config: &cfg,
				Logger: logger,
				Out:    cmd.OutOrStdout(),
			}
			execute := func() error {
				runner, err := pipeline.New(opts)
				if err != nil {
					return err
				}
				result, err := runner.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Artifacts written to %s\n", result.RunDir)
				return nil
			}

			if noStore {
				return execute()
			}
			return ctx.withStore(func(store *runstore.Store) error {
				opts.Store = store
				return execute()
			})
		},
	}

	cmd.Flags().StringVarP(&dataRoot, "data", "d", "", "Image folder root (overrides data.root)")
	cmd.Flags().IntVarP(&epochs, "epochs", "e", 0, "Number of epochs (overrides training.num_epochs)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run in the run store")
	return cmd
}
