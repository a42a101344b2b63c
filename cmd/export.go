package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the snapshot as CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		outFile, _ := cmd.Flags().GetString("out")

		db, err := loadSnapshot(context.Background())
		if err != nil {
			return err
		}

		if outFile == "" {
			if format == "xlsx" {
				return fmt.Errorf("xlsx export needs an output file (-O)")
			}
			return export.Write(os.Stdout, format, db)
		}

		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		if err := export.Write(f, format, db); err != nil {
			f.Close()
			os.Remove(outFile)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		utils.Log.Infof("Wrote %d rows to %s", len(export.Rows(db)), outFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("format", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().StringP("out", "O", "", "Output file (default: stdout, csv only)")
}
