package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/storewatch/storewatch/internal/utils"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Maintain the snapshot file",
}

var forgetCmd = &cobra.Command{
	Use:   "forget <store>",
	Short: "Remove a store from the snapshot so its next pass is a first run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store := args[0]

		lock, err := utils.NewSnapshotLock(viper.GetString("dbpath"))
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		db, err := loadSnapshot(ctx)
		if err != nil {
			return err
		}
		if !db.Forget(store) {
			return fmt.Errorf("store %q not in snapshot", store)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		if err := st.Save(ctx, db); err != nil {
			return err
		}
		utils.Log.Infof("Forgot %s", store)
		return nil
	},
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive sqlite3 shell on the snapshot (sqlite backend only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backend := viper.GetString("backend"); backend != "sqlite" {
			return fmt.Errorf("db shell needs the sqlite backend, not %q", backend)
		}
		dbPath := viper.GetString("dbpath")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("snapshot file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Snapshot schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(forgetCmd)
	dbCmd.AddCommand(shellCmd)
}
