package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

func newThresholdsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or change the known/unknown gates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			t, err := ctx.thresholds(cfg)
			if err != nil {
				return err
			}
			return writeJSON(cmd, t)
		},
	})

	var confidence, similarity float64
	set := &cobra.Command{
		Use:   "set",
		Short: "Write new thresholds to the configured thresholds file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Thresholds.File == "" {
				return errors.New("thresholds.file is not configured")
			}

			t, err := ctx.thresholds(cfg)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("confidence") {
				t.MinTop1Confidence = confidence
			}
			if cmd.Flags().Changed("similarity") {
				t.MinTop1Similarity = similarity
			}
			if err := t.Validate(); err != nil {
				return err
			}
			if err := classifier.SaveThresholds(cfg.Thresholds.File, t); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved thresholds to %s\n", cfg.Thresholds.File)
			return writeJSON(cmd, t)
		},
	}
	set.Flags().Float64Var(&confidence, "confidence", classifier.DefaultMinTop1Confidence, "Minimum top-1 confidence")
	set.Flags().Float64Var(&similarity, "similarity", classifier.DefaultMinTop1Similarity, "Minimum top-1 similarity")
	cmd.AddCommand(set)

	return cmd
}
