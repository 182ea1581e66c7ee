package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-extraction/internal/bootstrap"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/catalog/yamlfile"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the template catalog",
	}
	catalogCmd.AddCommand(newCatalogValidateCommand())
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	return catalogCmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a YAML template catalog without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer f.Close()

			templates, err := yamlfile.Parse(f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tpl := range templates {
				fmt.Fprintf(out, "%s/%s: %d rules, %d fields, priority %d\n",
					tpl.OrganizationID, tpl.Name, len(tpl.MatchingRules), len(tpl.FieldMappings), tpl.Priority)
			}
			fmt.Fprintf(out, "%d templates OK\n", len(templates))
			return nil
		},
	}
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert a YAML template catalog into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *bootstrap.App) error {
				templates, err := app.Importer.ImportFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, tpl := range templates {
					fmt.Fprintf(out, "#%d %s/%s v%d\n", tpl.ID, tpl.OrganizationID, tpl.Name, tpl.Version)
				}
				return nil
			})
		},
	}
}
