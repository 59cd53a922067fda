package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

func newAssignCommand(ctx *commandContext) *cobra.Command {
	var input embeddingInput

	cmd := &cobra.Command{
		Use:   "assign <label>",
		Short: "Train a class with one embedding",
		Long: "Train a class with one embedding. Every call is one training event: " +
			"running the same assign twice counts the embedding twice.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := input.resolve(cmd.Context(), ctx)
			if err != nil {
				return err
			}

			label := strings.TrimSpace(args[0])
			clf, err := ctx.updateClassifier(cmd.Context(), func(clf *classifier.Classifier) error {
				return clf.Assign(emb.embedding, label)
			})
			if err != nil {
				return err
			}

			class, _ := clf.Class(label)
			return writeJSON(cmd, map[string]any{
				"ok":      true,
				"tool":    toolName,
				"version": version,
				"label":   class.Label,
				"count":   class.Count,
			})
		},
	}

	input.register(cmd)
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <label>",
		Short: "Delete a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.TrimSpace(args[0])
			if _, err := ctx.updateClassifier(cmd.Context(), func(clf *classifier.Classifier) error {
				return clf.RemoveClass(label)
			}); err != nil {
				return fmt.Errorf("remove %q: %w", label, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed class %s\n", label)
			return nil
		},
	}
}

func newLabelsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List classes in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clf, release, err := ctx.openClassifier()
			if err != nil {
				return err
			}
			defer release()

			classes := clf.Classes()
			if jsonOutput {
				return writeJSON(cmd, classes)
			}

			out := cmd.OutOrStdout()
			if len(classes) == 0 {
				fmt.Fprintln(out, "No classes registered")
				return nil
			}

			rows := make([][]string, 0, len(classes))
			for i, class := range classes {
				rows = append(rows, []string{strconv.Itoa(i + 1), class.Label, strconv.Itoa(class.Count)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Label", "Samples"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Dimension: %d\n", clf.Dimension())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print classes as JSON")
	return cmd
}
