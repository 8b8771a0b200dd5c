package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/tensor"
)

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the autoencoder layout and the compute device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			device, err := tensor.ParseDevice(cfg.Training.Device)
			if err != nil {
				return err
			}
			model, err := autoencoder.NewForImageSize(
				cfg.Model.ImageSize,
				autoencoder.Config{LatentDim: cfg.Model.LatentDim},
				rand.New(rand.NewSource(cfg.Training.Seed)),
				device,
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, model.Summary())
			fmt.Fprintln(out, tensor.DescribeDevice(device).String())
			return nil
		},
	}
}
