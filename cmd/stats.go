package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/storewatch/storewatch/pkg/storage"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints listing counts and the cheapest listing per store.",
	Long:  "Prints listing counts and the cheapest listing per store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := loadSnapshot(context.Background())
		if err != nil {
			return err
		}

		if len(db) == 0 {
			fmt.Println("No data in the snapshot to generate stats.")
			return nil
		}

		printStats(os.Stdout, db.Stats())
		return nil
	},
}

func printStats(out io.Writer, stats []storage.StoreStats) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STORE\tLISTINGS\tPRICED\tCHEAPEST\tNEWEST\t")

	var totalListings, totalPriced int
	for _, s := range stats {
		cheapest := "-"
		if s.CheapestTitle != "" {
			cheapest = s.CheapestPrice
		}
		newest := "-"
		if !s.Newest.IsZero() {
			newest = s.Newest.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t\n", s.Store, s.Listings, s.Priced, cheapest, newest)
		totalListings += s.Listings
		totalPriced += s.Priced
	}

	fmt.Fprintln(w, " \t \t \t \t \t")
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t\t\t\n", totalListings, totalPriced)

	w.Flush()
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
