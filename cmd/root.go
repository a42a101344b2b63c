package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/scraper"
	"github.com/storewatch/storewatch/pkg/storage"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	     _                                 _       _
	 ___| |_ ___  _ __ _____      ____ _| |_ ___| |__
	/ __| __/ _ \| '__/ _ \ \ /\ / / _` + "`" + ` | __/ __| '_ \
	\__ \ || (_) | | |  __/\ V  V / (_| | || (__| | | |
	|___/\__\___/|_|  \___| \_/\_/ \__,_|\__\___|_| |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "storewatch",
	Short: "Watches web shops for new listings and price changes.",
	Long: LOGO + `storewatch scrapes a set of web shops, compares what it finds with the last
saved snapshot and posts new listings, price drops and price increases to a
Discord webhook.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.storewatch.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to the snapshot file (default: tracker_db.json)")
	rootCmd.PersistentFlags().String("backend", "", "Snapshot backend: json or sqlite (default: json)")

	viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag("dbpath", rootCmd.PersistentFlags().Lookup("dbpath"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading .env: %s\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".storewatch")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.BindEnv("webhook", "DISCORD_WEBHOOK")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".storewatch.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		} else {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	viper.SetDefault("webhook", "")
	viper.SetDefault("interval", 300)
	viper.SetDefault("silent_if_no_changes", true)
	viper.SetDefault("dbpath", "tracker_db.json")
	viper.SetDefault("backend", "json")
	viper.SetDefault("query", "RTX 5090")
	viper.SetDefault("debug_dir", "")
	viper.SetDefault("timeout", 30)
	viper.SetDefault("browser_bin", "")
	viper.SetDefault("state_file", "storage_state.json")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// loadSites returns the configured stores, or the built-in ones when the
// config has none.
func loadSites() ([]scraper.Site, error) {
	if !viper.IsSet("stores") {
		return scraper.DefaultSites(), nil
	}
	var sites []scraper.Site
	if err := viper.UnmarshalKey("stores", &sites); err != nil {
		return nil, fmt.Errorf("invalid stores config: %w", err)
	}
	if len(sites) == 0 {
		return scraper.DefaultSites(), nil
	}
	for i := range sites {
		if err := sites[i].Validate(); err != nil {
			return nil, err
		}
	}
	return sites, nil
}

func openStore() (storage.Store, error) {
	return storage.Open(viper.GetString("backend"), viper.GetString("dbpath"))
}

// loadSnapshot opens the configured backend and reads it. A missing file is
// reported rather than shown as an empty snapshot.
func loadSnapshot(ctx context.Context) (storage.Database, error) {
	dbPath := viper.GetString("dbpath")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot file not found: %s", dbPath)
	}
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	return st.Load(ctx)
}
