// Package polling runs storewatch's reconciliation pass over every
// configured store and repeats it on an interval.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storewatch/storewatch/pkg/scraper"
	"github.com/storewatch/storewatch/pkg/storage"
	"github.com/storewatch/storewatch/pkg/tracker"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Notifier delivers a batch. notify.Discord satisfies it.
type Notifier interface {
	Notify(ctx context.Context, b tracker.Batch) error
}

// Locker guards the snapshot for the length of a run.
type Locker interface {
	Lock() error
	Unlock() error
}

// Config holds everything RunOnce needs.
type Config struct {
	Sites   []scraper.Site
	Scraper scraper.Scraper
	Store   storage.Store

	Notifier          Notifier // optional; nil = log and skip delivery
	SilentIfNoChanges bool
	Locker            Locker           // optional
	Log               Logger           // optional; nil = no logging
	Now               func() time.Time // optional; defaults to time.Now

	// Interval is the pause between the end of one pass and the start of
	// the next in Loop.
	Interval time.Duration

	// OnStoreDone is called after each store is reconciled. Nil = no callback.
	OnStoreDone func(s tracker.StoreSummary)
}

// RunResult holds the outcome of one pass.
type RunResult struct {
	Batch    tracker.Batch
	Notified bool
	Errors   []error // non-fatal errors
}

// RunOnce scrapes every site in order, reconciles it with the snapshot,
// notifies when the batch warrants it and saves the snapshot once at the
// end. A cancelled context stops the pass without saving. Only a failed save
// or lock is returned as an error; everything else lands in Errors.
func RunOnce(ctx context.Context, cfg Config) (*RunResult, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if err := checkSites(cfg.Sites); err != nil {
		return nil, err
	}

	if cfg.Locker != nil {
		if err := cfg.Locker.Lock(); err != nil {
			return nil, err
		}
		defer func() {
			if err := cfg.Locker.Unlock(); err != nil {
				log.Warnf("%v", err)
			}
		}()
	}

	result := &RunResult{}

	db, err := cfg.Store.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		log.Warnf("Could not load snapshot, starting from empty: %v", err)
		result.Errors = append(result.Errors, err)
	}
	if db == nil {
		db = storage.Database{}
	}

	summaries := make([]tracker.StoreSummary, 0, len(cfg.Sites))
	for _, site := range cfg.Sites {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		log.Infof("--- Checking %s ---", site.Name)

		firstRun := !db.Has(site.Name)
		if firstRun {
			log.Infof("First run for %s, recording initial snapshot", site.Name)
		}

		listings, err := cfg.Scraper.Scrape(ctx, site)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			log.Warnf("Scraping %s failed: %v", site.Name, err)
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", site.Name, err))
			listings = nil
		}
		log.Infof("%s: %d listing(s)", site.Name, len(listings))

		previous := db[site.Name]
		changes := tracker.DetectChanges(listings, previous)
		if len(changes) > 0 {
			log.Infof("%s: changes: %s", site.Name, kinds(changes))
		}

		summary := tracker.StoreSummary{
			Store:       site.Name,
			DisplayName: site.Label(),
			URL:         site.Link(),
			Listings:    listings,
			Changes:     changes,
			FirstRun:    firstRun,
		}
		summaries = append(summaries, summary)
		if cfg.OnStoreDone != nil {
			cfg.OnStoreDone(summary)
		}

		db.Update(site.Name, listings, previous, now())
	}

	result.Batch = tracker.NewBatch(summaries, cfg.SilentIfNoChanges)
	switch {
	case result.Batch.Empty():
	case !result.Batch.Send:
		log.Infof("No changes, silent run")
	case cfg.Notifier == nil:
		log.Warnf("Webhook not set, skipping notification")
	default:
		if err := cfg.Notifier.Notify(ctx, result.Batch); err != nil {
			log.Errorf("Notification failed: %v", err)
			result.Errors = append(result.Errors, fmt.Errorf("notify: %w", err))
		} else {
			result.Notified = true
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := cfg.Store.Save(ctx, db); err != nil {
		return result, fmt.Errorf("save snapshot: %w", err)
	}
	return result, nil
}

// Loop runs RunOnce until ctx is cancelled, sleeping cfg.Interval between
// passes. Passes never overlap. Failed passes are logged and retried on the
// next tick. onRun, if set, sees every pass's result.
func Loop(ctx context.Context, cfg Config, onRun func(*RunResult, error)) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, cfg.Interval)
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}

	for {
		res, err := RunOnce(ctx, cfg)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.Errorf("Run failed: %v", err)
		}
		if onRun != nil {
			onRun(res, err)
		}

		log.Infof("Done. Sleeping %s.", cfg.Interval)
		t := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ErrInvalidInterval is returned by Loop for a pause that is not positive.
var ErrInvalidInterval = errors.New("interval must be positive")

var errDuplicateSite = errors.New("duplicate site name")

func checkSites(sites []scraper.Site) error {
	seen := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: %q", errDuplicateSite, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

func kinds(changes []tracker.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Kind().String()
	}
	return out
}
