package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-extraction/internal/bootstrap"
	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <sample-id>",
		Short: "Run extraction for a sample synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *bootstrap.App) error {
				if err := app.ProcessUC.Process(cmd.Context(), args[0]); err != nil {
					return err
				}
				sample, err := app.QueryUC.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, sample)
			})
		},
	}
}

func newAssignCommand(ctx *commandContext) *cobra.Command {
	var templateID int64
	var noReprocess bool

	cmd := &cobra.Command{
		Use:   "assign <sample-id>",
		Short: "Assign a template to a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateID <= 0 {
				return fmt.Errorf("--template must be a positive id")
			}
			return ctx.withApp(cmd.Context(), func(app *bootstrap.App) error {
				sample, err := app.ProcessUC.AssignTemplate(cmd.Context(), args[0], templateID, !noReprocess)
				if err != nil {
					return err
				}
				return printJSON(cmd, sample)
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "Template id")
	cmd.Flags().BoolVar(&noReprocess, "no-reprocess", false, "Only attach the template, keep the current result")
	return cmd
}

func newCorrectCommand(ctx *commandContext) *cobra.Command {
	var templateID int64
	var text string
	var fieldsJSON string

	cmd := &cobra.Command{
		Use:   "correct <sample-id>",
		Short: "Record a manual correction as training data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			correction, err := buildCorrection(cmd, templateID, text, fieldsJSON)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(app *bootstrap.App) error {
				result, err := app.ProcessUC.RecordCorrection(cmd.Context(), args[0], correction)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "Corrected template id")
	cmd.Flags().StringVar(&text, "text", "", "Corrected document text")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", "Corrected fields as a JSON object")
	return cmd
}

func buildCorrection(cmd *cobra.Command, templateID int64, text, fieldsJSON string) (domain.Correction, error) {
	var correction domain.Correction
	if cmd.Flags().Changed("template") {
		correction.TemplateID = &templateID
	}
	if cmd.Flags().Changed("text") {
		correction.Text = &text
	}
	if strings.TrimSpace(fieldsJSON) != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &correction.Fields); err != nil {
			return domain.Correction{}, fmt.Errorf("parse --fields: %w", err)
		}
	}
	return correction, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
