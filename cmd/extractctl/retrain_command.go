package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-extraction/internal/bootstrap"
)

func newRetrainCommand(ctx *commandContext) *cobra.Command {
	retrainCmd := &cobra.Command{
		Use:   "retrain",
		Short: "Inspect and trigger classifier retraining",
	}
	retrainCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Start retraining if the corpus passed the thresholds, and wait for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *bootstrap.App) error {
				count, err := app.Corpus.Count(cmd.Context())
				if err != nil {
					return err
				}
				started, err := app.Scheduler.MaybeRetrain(cmd.Context(), count)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !started {
					fmt.Fprintf(out, "Corpus has %d samples; retraining not due\n", count)
					return nil
				}
				fmt.Fprintf(out, "Corpus has %d samples; retraining started\n", count)
				app.Scheduler.Wait()
				fmt.Fprintln(out, "Retraining finished")
				return nil
			})
		},
	})
	return retrainCmd
}
