package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export profile version history to an XLSX workbook",
	Long:  "Writes every profile version for the house type, its passes, and its facts to a spreadsheet for audit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope, err := scopeFromFlags()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		versions, err := st.ListProfileVersions(ctx, scope)
		if err != nil {
			return err
		}

		wb := xlsx.NewFile()

		versionSheet, err := wb.AddSheet("Versions")
		if err != nil {
			return err
		}
		addRow(versionSheet, "Version", "Current", "Quality", "Facts", "Passes", "Created", "Superseded By")
		for _, v := range versions {
			addRow(versionSheet,
				fmt.Sprintf("%d", v.Version),
				fmt.Sprintf("%t", v.IsCurrent),
				fmt.Sprintf("%.3f", v.QualityScore),
				fmt.Sprintf("%d", len(v.Facts)),
				fmt.Sprintf("%d", len(v.Passes)),
				v.CreatedAt.Format(time.RFC3339),
				v.SupersededBy,
			)
		}

		passSheet, err := wb.AddSheet("Passes")
		if err != nil {
			return err
		}
		addRow(passSheet, "Version", "Pass ID", "Method", "Outcome", "Facts", "Cost (cents)", "Started", "Finalized")
		for _, v := range versions {
			for _, p := range v.Passes {
				finalized := ""
				if p.FinalizedAt != nil {
					finalized = p.FinalizedAt.Format(time.RFC3339)
				}
				addRow(passSheet,
					fmt.Sprintf("%d", v.Version),
					p.ID,
					p.Method,
					string(p.Outcome),
					fmt.Sprintf("%d", p.FactCount),
					fmt.Sprintf("%d", p.CostCents),
					p.StartedAt.Format(time.RFC3339),
					finalized,
				)
			}
		}

		factSheet, err := wb.AddSheet("Facts")
		if err != nil {
			return err
		}
		addRow(factSheet, "Version", "Key", "Value", "Unit", "Source", "Confidence")
		for _, v := range versions {
			for key, f := range v.Facts {
				addRow(factSheet,
					fmt.Sprintf("%d", v.Version),
					key,
					fmt.Sprintf("%v", f.Value),
					f.Unit,
					string(f.Source),
					fmt.Sprintf("%.2f", f.Confidence),
				)
			}
		}

		if err := wb.Save(exportPath); err != nil {
			return err
		}
		cmd.Printf("wrote %d versions to %s\n", len(versions), exportPath)
		return nil
	},
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func init() {
	addScopeFlags(exportCmd, false)
	exportCmd.Flags().StringVar(&exportPath, "out", "profile-history.xlsx", "output xlsx path")
	rootCmd.AddCommand(exportCmd)
}
