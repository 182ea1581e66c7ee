package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-extraction/internal/bootstrap"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <entry-id>",
		Short: "Write an entry's extraction results to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := outPath
			if path == "" {
				path = fmt.Sprintf("entry-%s.xlsx", args[0])
			}
			return ctx.withApp(cmd.Context(), func(app *bootstrap.App) error {
				raw, err := app.QueryUC.ExportEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, raw, 0o644); err != nil {
					return fmt.Errorf("write workbook: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(raw))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default entry-<id>.xlsx)")
	return cmd
}
