package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/notify"
	"github.com/storewatch/storewatch/pkg/polling"
	"github.com/storewatch/storewatch/pkg/scraper"
	"github.com/storewatch/storewatch/pkg/tracker"
	"github.com/storewatch/storewatch/pkg/whttp"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scrape every store, diff against the snapshot and notify on changes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		once, _ := cmd.Flags().GetBool("once")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, browser, cleanup, err := buildPollingConfig()
		if err != nil {
			return err
		}
		defer cleanup()

		if once {
			res, err := polling.RunOnce(ctx, cfg)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			reportRun(res)
			return nil
		}

		utils.Log.Infof("Watching %d stores every %s", len(cfg.Sites), cfg.Interval)
		err = polling.Loop(ctx, cfg, func(res *polling.RunResult, err error) {
			if err == nil {
				reportRun(res)
			}
			if err := browser.SaveState(); err != nil {
				utils.Log.Warnf("Could not save browser state: %v", err)
			}
		})
		if errors.Is(err, context.Canceled) {
			utils.Log.Info("Stopped")
			return nil
		}
		return err
	},
}

// buildPollingConfig wires the configured stores to the fetchers, the
// snapshot store and the notifier. cleanup closes the browser.
func buildPollingConfig() (polling.Config, *scraper.BrowserFetcher, func(), error) {
	noop := func() {}

	sites, err := loadSites()
	if err != nil {
		return polling.Config{}, nil, noop, err
	}
	interval, err := pollInterval(viper.GetInt("interval"))
	if err != nil {
		return polling.Config{}, nil, noop, err
	}

	timeout := time.Duration(viper.GetInt("timeout")) * time.Second
	proxy := viper.GetString("proxy")

	client, err := whttp.NewClient(whttp.Options{
		Timeout:  timeout,
		Proxy:    proxy,
		RetryMax: 0,
		Log:      utils.Log,
	})
	if err != nil {
		return polling.Config{}, nil, noop, err
	}

	dumper := scraper.NewDumper(viper.GetString("debug_dir"))
	browser := scraper.NewBrowserFetcher(scraper.BrowserOptions{
		Bin:       viper.GetString("browser_bin"),
		StateFile: viper.GetString("state_file"),
	}, dumper)
	cleanup := func() {
		if err := browser.Close(); err != nil {
			utils.Log.Warnf("Closing browser: %v", err)
		}
	}

	store, err := openStore()
	if err != nil {
		cleanup()
		return polling.Config{}, nil, noop, err
	}
	lock, err := utils.NewSnapshotLock(viper.GetString("dbpath"))
	if err != nil {
		cleanup()
		return polling.Config{}, nil, noop, err
	}

	cfg := polling.Config{
		Sites:             sites,
		Scraper:           scraper.New(scraper.NewHTTPFetcher(client, timeout), browser, dumper),
		Store:             store,
		SilentIfNoChanges: viper.GetBool("silent_if_no_changes"),
		Locker:            lock,
		Log:               utils.Log,
		Interval:          interval,
		OnStoreDone: func(s tracker.StoreSummary) {
			utils.Log.Infof("%s: %d listings, %d changes", s.Store, len(s.Listings), len(s.Changes))
		},
	}

	if webhook := viper.GetString("webhook"); webhook != "" {
		cfg.Notifier = notify.NewDiscord(webhook, notify.DiscordOptions{
			Query: viper.GetString("query"),
			Proxy: proxy,
		})
	} else {
		utils.Log.Warn("No webhook configured, notifications will only be logged")
	}

	return cfg, browser, cleanup, nil
}

// pollInterval converts the configured seconds between passes, rejecting
// values that would make the loop spin.
func pollInterval(seconds int) (time.Duration, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("interval must be a positive number of seconds, got %d", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func reportRun(res *polling.RunResult) {
	for _, err := range res.Errors {
		utils.Log.Warnf("%v", err)
	}
	switch {
	case res.Batch.Empty():
		utils.Log.Info("No changes")
	case res.Notified:
		utils.Log.Infof("Notified about %d stores", len(res.Batch.Stores))
	default:
		utils.Log.Infof("%d stores to report, no notification sent", len(res.Batch.Stores))
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("once", false, "Run a single pass and exit")
	watchCmd.Flags().Int("interval", 300, "Seconds between passes")
	watchCmd.Flags().Bool("silent", true, "Skip notifications for stores without changes")
	watchCmd.Flags().String("webhook", "", "Discord webhook URL (or DISCORD_WEBHOOK)")
	watchCmd.Flags().String("debug-dir", "", "Directory for HTML dumps and screenshots")

	viper.BindPFlag("interval", watchCmd.Flags().Lookup("interval"))
	viper.BindPFlag("silent_if_no_changes", watchCmd.Flags().Lookup("silent"))
	viper.BindPFlag("webhook", watchCmd.Flags().Lookup("webhook"))
	viper.BindPFlag("debug_dir", watchCmd.Flags().Lookup("debug-dir"))
}
