package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pnodedash/models"
	"pnodedash/services"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a CSV or JSON file before importing it",
		Long: `Parse and validate an import file and print a preview. The command
fails when any row is invalid.

Examples:
  pnodedash validate nodes.csv
  pnodedash validate export.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			importer := services.NewImportService(a.cfg.Import.PreviewRows, a.cfg.Import.MaxErrors, nil, a.logger)
			preview, err := importer.Preview(string(data))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			printPreview(cmd, preview)
			if preview.InvalidCount > 0 {
				return fmt.Errorf("%d of %d rows are invalid", preview.InvalidCount, preview.TotalRows)
			}
			return nil
		},
	}
}

func printPreview(cmd *cobra.Command, p *models.ImportPreview) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Format:  %s\n", p.Format)
	fmt.Fprintf(w, "Rows:    %d\n", p.TotalRows)
	fmt.Fprintf(w, "Valid:   %d\n", p.ValidCount)
	fmt.Fprintf(w, "Invalid: %d\n", p.InvalidCount)

	if len(p.Rows) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "First %d rows:\n", len(p.Rows))
		for i, row := range p.Rows {
			fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, row[services.FieldPubkey], row[services.FieldStatus])
		}
	}

	if len(p.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range p.Errors {
			fmt.Fprintf(w, "  row %d, %s: %s\n", e.Row, e.Field, e.Message)
		}
		if p.ErrorsTruncated {
			fmt.Fprintln(w, "  ...")
		}
	}
}
