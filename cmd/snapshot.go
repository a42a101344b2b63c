package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/storewatch/storewatch/pkg/storage"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [store]",
	Short: "Print the saved snapshot, optionally for one store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFlags, _ := cmd.Flags().GetString("output")
		delimiter, _ := cmd.Flags().GetString("delimiter")

		db, err := loadSnapshot(context.Background())
		if err != nil {
			return err
		}
		if len(args) == 1 {
			if !db.Has(args[0]) {
				return fmt.Errorf("store %q not in snapshot", args[0])
			}
			db = storage.Database{args[0]: db[args[0]]}
		}
		return printSnapshot(os.Stdout, db, outputFlags, delimiter)
	},
}

func printSnapshot(w io.Writer, db storage.Database, outputFlags, delimiter string) error {
	for _, store := range db.Stores() {
		snap := db[store]
		for _, title := range snap.Titles() {
			line, err := snapshotLine(store, title, snap[title], outputFlags, delimiter)
			if err != nil {
				return err
			}
			if len(line) > 0 {
				fmt.Fprintln(w, line)
			}
		}
	}
	return nil
}

func snapshotLine(store, title string, rec storage.Record, outputFlags, delimiter string) (string, error) {
	var line string
	for _, f := range outputFlags {
		switch f {
		case 't':
			line += title + delimiter
		case 's':
			line += store + delimiter
		case 'p':
			line += rec.Price + delimiter
		case 'f':
			if !rec.FirstSeen.IsZero() {
				line += rec.FirstSeen.UTC().Format(time.RFC3339)
			}
			line += delimiter
		default:
			return "", fmt.Errorf("invalid output flag %q", f)
		}
	}
	return strings.TrimSuffix(line, delimiter), nil
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringP("output", "o", "stp", "Output flags. Supported: t (title), s (store), p (price), f (first seen). Can be combined. Example: -o tpf")
	snapshotCmd.Flags().StringP("delimiter", "d", " ", "Delimiter character to use for output")
}
