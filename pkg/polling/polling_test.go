package polling

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/storewatch/storewatch/pkg/scraper"
	"github.com/storewatch/storewatch/pkg/storage"
	"github.com/storewatch/storewatch/pkg/tracker"
)

type memStore struct {
	db      storage.Database
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load(context.Context) (storage.Database, error) {
	out := storage.Database{}
	for store, snap := range m.db {
		cp := storage.StoreSnapshot{}
		for t, r := range snap {
			cp[t] = r
		}
		out[store] = cp
	}
	return out, m.loadErr
}

func (m *memStore) Save(_ context.Context, db storage.Database) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.db = db
	return nil
}

type fakeScraper struct {
	listings map[string][]storage.Listing
	errs     map[string]error
	hook     func(site scraper.Site)
}

func (f *fakeScraper) Scrape(ctx context.Context, site scraper.Site) ([]storage.Listing, error) {
	if f.hook != nil {
		f.hook(site)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[site.Name]; err != nil {
		return nil, err
	}
	return f.listings[site.Name], nil
}

type fakeNotifier struct {
	batches []tracker.Batch
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, b tracker.Batch) error {
	n.batches = append(n.batches, b)
	return n.err
}

type countingLocker struct{ locks, unlocks int }

func (l *countingLocker) Lock() error   { l.locks++; return nil }
func (l *countingLocker) Unlock() error { l.unlocks++; return nil }

var (
	t0 = time.Unix(1700000000, 0)
	t1 = t0.Add(5 * time.Minute)
)

func sites(names ...string) []scraper.Site {
	out := make([]scraper.Site, len(names))
	for i, n := range names {
		out[i] = scraper.Site{Name: n, DisplayName: n + " display", URL: "https://" + n + ".example"}
	}
	return out
}

func baseConfig(st *memStore, sc *fakeScraper, n *fakeNotifier, now time.Time) Config {
	cfg := Config{
		Sites:             sites("inet", "komplett"),
		Scraper:           sc,
		Store:             st,
		SilentIfNoChanges: true,
		Now:               func() time.Time { return now },
	}
	if n != nil {
		cfg.Notifier = n
	}
	return cfg
}

func TestRunOnceFirstRunThenQuiet(t *testing.T) {
	st := &memStore{}
	sc := &fakeScraper{listings: map[string][]storage.Listing{
		"inet":     {{Title: "A", Price: "35 990 kr"}, {Title: "B"}},
		"komplett": nil,
	}}
	n := &fakeNotifier{}
	lock := &countingLocker{}

	cfg := baseConfig(st, sc, n, t0)
	cfg.Locker = lock
	res, err := RunOnce(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Batch.Send || res.Batch.Urgent || !res.Notified {
		t.Fatalf("first run must notify without ping: %+v", res)
	}
	if len(res.Batch.Stores) != 2 || !res.Batch.Stores[0].FirstRun || !res.Batch.Stores[1].FirstRun {
		t.Fatalf("expected two first-run stores, got %+v", res.Batch.Stores)
	}
	if got := len(res.Batch.Stores[0].Changes); got != 2 {
		t.Fatalf("expected detector to report both listings as new, got %d", got)
	}
	want := storage.Database{
		"inet": {
			"A": {Price: "35 990 kr", FirstSeen: t0},
			"B": {FirstSeen: t0},
		},
		"komplett": {},
	}
	if !reflect.DeepEqual(st.db, want) {
		t.Fatalf("expected saved %v, got %v", want, st.db)
	}
	if lock.locks != 1 || lock.unlocks != 1 {
		t.Fatalf("expected one lock/unlock, got %d/%d", lock.locks, lock.unlocks)
	}

	res, err = RunOnce(context.Background(), baseConfig(st, sc, n, t1))
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if res.Batch.Send || res.Notified {
		t.Fatalf("expected silent second run, got %+v", res)
	}
	if res.Batch.Stores[1].FirstRun {
		t.Fatal("store with zero listings must not be a first run again")
	}
	if st.saves != 2 {
		t.Fatalf("expected a save per run, got %d", st.saves)
	}
	if !st.db["inet"]["A"].FirstSeen.Equal(t0) {
		t.Fatalf("first_seen not carried over: %v", st.db["inet"]["A"].FirstSeen)
	}
	if len(n.batches) != 1 {
		t.Fatalf("expected one notification in total, got %d", len(n.batches))
	}
}

func TestRunOnceChanges(t *testing.T) {
	st := &memStore{db: storage.Database{
		"inet":     {"A": {Price: "38 990 kr", FirstSeen: t0}, "Old": {Price: "1 kr", FirstSeen: t0}},
		"komplett": {"K": {Price: "30 000 kr", FirstSeen: t0}},
	}}
	sc := &fakeScraper{listings: map[string][]storage.Listing{
		"inet":     {{Title: "A", Price: "35 990 kr"}},
		"komplett": {{Title: "K", Price: "31 000 kr"}},
	}}
	n := &fakeNotifier{}

	res, err := RunOnce(context.Background(), baseConfig(st, sc, n, t1))
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Batch.Urgent || !res.Notified {
		t.Fatalf("expected urgent notification, got %+v", res)
	}
	wantInet := []tracker.Change{
		tracker.PriceDrop{Title: "A", OldPrice: "38 990 kr", NewPrice: "35 990 kr"},
		tracker.Gone{Title: "Old"},
	}
	if !reflect.DeepEqual(res.Batch.Stores[0].Changes, wantInet) {
		t.Fatalf("unexpected inet changes %#v", res.Batch.Stores[0].Changes)
	}
	if _, ok := st.db["inet"]["Old"]; ok {
		t.Fatal("gone listing still in snapshot")
	}
}

func TestRunOnceSilenceDisabled(t *testing.T) {
	st := &memStore{db: storage.Database{"inet": {}, "komplett": {}}}
	sc := &fakeScraper{}
	n := &fakeNotifier{}
	cfg := baseConfig(st, sc, n, t1)
	cfg.SilentIfNoChanges = false

	res, err := RunOnce(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Notified || res.Batch.Urgent {
		t.Fatalf("expected plain notification, got %+v", res)
	}
}

func TestRunOnceScrapeFailure(t *testing.T) {
	st := &memStore{db: storage.Database{
		"inet":     {"A": {Price: "1 kr", FirstSeen: t0}},
		"komplett": {"K": {Price: "2 kr", FirstSeen: t0}},
	}}
	boom := errors.New("timeout")
	sc := &fakeScraper{
		listings: map[string][]storage.Listing{"komplett": {{Title: "K", Price: "2 kr"}}},
		errs:     map[string]error{"inet": boom},
	}

	res, err := RunOnce(context.Background(), baseConfig(st, sc, &fakeNotifier{}, t1))
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], boom) {
		t.Fatalf("expected scrape error to be collected, got %v", res.Errors)
	}
	if !reflect.DeepEqual(res.Batch.Stores[0].Changes, []tracker.Change{tracker.Gone{Title: "A"}}) {
		t.Fatalf("expected failed store to degrade to gone, got %#v", res.Batch.Stores[0].Changes)
	}
	if !st.db.Has("inet") || len(st.db["inet"]) != 0 {
		t.Fatalf("expected empty inet snapshot, got %v", st.db["inet"])
	}
}

func TestRunOnceCorruptSnapshotIsColdStart(t *testing.T) {
	st := &memStore{loadErr: fmt.Errorf("%w: bad", storage.ErrCorrupt)}
	sc := &fakeScraper{listings: map[string][]storage.Listing{"inet": {{Title: "A"}}}}
	n := &fakeNotifier{}

	res, err := RunOnce(context.Background(), baseConfig(st, sc, n, t0))
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], storage.ErrCorrupt) {
		t.Fatalf("expected corrupt error recorded, got %v", res.Errors)
	}
	if !res.Batch.Stores[0].FirstRun || !res.Notified || st.saves != 1 {
		t.Fatalf("expected first-run notification and save, got %+v saves=%d", res, st.saves)
	}
}

func TestRunOnceNotifyFailureStillSaves(t *testing.T) {
	st := &memStore{}
	sc := &fakeScraper{}
	n := &fakeNotifier{err: errors.New("discord down")}

	res, err := RunOnce(context.Background(), baseConfig(st, sc, n, t0))
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Notified || len(res.Errors) != 1 {
		t.Fatalf("expected notify error recorded, got %+v", res)
	}
	if st.saves != 1 {
		t.Fatalf("expected snapshot to be saved despite notify failure, saves=%d", st.saves)
	}
}

func TestRunOnceWithoutNotifier(t *testing.T) {
	st := &memStore{}
	res, err := RunOnce(context.Background(), baseConfig(st, &fakeScraper{}, nil, t0))
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Notified || !res.Batch.Send || st.saves != 1 {
		t.Fatalf("expected skipped delivery and a save, got %+v saves=%d", res, st.saves)
	}
}

func TestRunOnceCancelledDoesNotSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &memStore{}
	sc := &fakeScraper{hook: func(site scraper.Site) {
		if site.Name == "komplett" {
			cancel()
		}
	}}
	_, err := RunOnce(ctx, baseConfig(st, sc, &fakeNotifier{}, t0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.saves != 0 {
		t.Fatalf("interrupted run must not write, saves=%d", st.saves)
	}
}

func TestRunOnceSaveFailure(t *testing.T) {
	st := &memStore{saveErr: errors.New("disk full")}
	if _, err := RunOnce(context.Background(), baseConfig(st, &fakeScraper{}, nil, t0)); err == nil {
		t.Fatal("expected save error")
	}
}

func TestRunOnceDuplicateSites(t *testing.T) {
	cfg := baseConfig(&memStore{}, &fakeScraper{}, nil, t0)
	cfg.Sites = sites("inet", "inet")
	if _, err := RunOnce(context.Background(), cfg); !errors.Is(err, errDuplicateSite) {
		t.Fatalf("expected duplicate site error, got %v", err)
	}
}

func TestRunOnceOnStoreDone(t *testing.T) {
	var order []string
	cfg := baseConfig(&memStore{}, &fakeScraper{}, nil, t0)
	cfg.OnStoreDone = func(s tracker.StoreSummary) { order = append(order, s.Store) }
	if _, err := RunOnce(context.Background(), cfg); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"inet", "komplett"}) {
		t.Fatalf("expected stores in configured order, got %v", order)
	}
}

func TestLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &memStore{}
	cfg := baseConfig(st, &fakeScraper{}, nil, t0)
	cfg.Interval = time.Millisecond

	runs := 0
	err := Loop(ctx, cfg, func(res *RunResult, err error) {
		if err != nil {
			t.Errorf("run %d: %v", runs, err)
		}
		runs++
		if runs == 3 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runs != 3 || st.saves != 3 {
		t.Fatalf("expected 3 runs and saves, got runs=%d saves=%d", runs, st.saves)
	}
}

func TestLoopRejectsNonPositiveInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		st := &memStore{}
		cfg := baseConfig(st, &fakeScraper{}, nil, t0)
		cfg.Interval = d

		err := Loop(context.Background(), cfg, nil)
		if !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("interval %s: expected ErrInvalidInterval, got %v", d, err)
		}
		if st.saves != 0 {
			t.Fatalf("interval %s: expected no pass, got %d saves", d, st.saves)
		}
	}
}
