package storage

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// Listing is one scraped product entry for a store. Title is the identity
// key within a store.
type Listing struct {
	Title string
	// Price is the price as displayed by the store, empty when the scraper
	// could not extract one.
	Price string
}

// Record is what a snapshot remembers about a listing title.
type Record struct {
	Price     string    // empty: no price
	FirstSeen time.Time // zero: unknown

	// seconds is first_seen exactly as read from a JSON snapshot. It is
	// written back verbatim while FirstSeen still matches it, so older
	// files with sub-microsecond timestamps survive a load and save.
	seconds float64
}

// StoreSnapshot maps listing titles to their last known record.
type StoreSnapshot map[string]Record

// Database maps store names to their snapshot.
type Database map[string]StoreSnapshot

// MarshalJSON writes {"price": string|null, "first_seen": unix seconds}.
func (r Record) MarshalJSON() ([]byte, error) {
	out := struct {
		Price     *string  `json:"price"`
		FirstSeen *float64 `json:"first_seen"`
	}{}
	if r.Price != "" {
		p := r.Price
		out.Price = &p
	}
	if !r.FirstSeen.IsZero() {
		ts := r.unixSeconds()
		out.FirstSeen = &ts
	}
	return json.Marshal(out)
}

// UnmarshalJSON is lenient: anything that is not a string price or a numeric
// timestamp is read as absent.
func (r *Record) UnmarshalJSON(data []byte) error {
	*r = decodeRecord(gjson.ParseBytes(data))
	return nil
}

func decodeRecord(v gjson.Result) Record {
	var rec Record
	if p := v.Get("price"); p.Type == gjson.String {
		rec.Price = p.String()
	}
	if fs := v.Get("first_seen"); fs.Type == gjson.Number {
		rec.FirstSeen = fromUnixSeconds(fs.Float())
		if !rec.FirstSeen.IsZero() {
			rec.seconds = fs.Float()
		}
	}
	return rec
}

func (r Record) unixSeconds() float64 {
	if r.seconds != 0 && fromUnixSeconds(r.seconds).Equal(r.FirstSeen) {
		return r.seconds
	}
	return float64(r.FirstSeen.UnixMicro()) / 1e6
}

func fromUnixSeconds(f float64) time.Time {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}
	}
	return time.UnixMicro(int64(math.Round(f * 1e6)))
}

// Titles returns the snapshot's titles in sorted order.
func (s StoreSnapshot) Titles() []string {
	titles := make([]string, 0, len(s))
	for t := range s {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// Stores returns the database's store names in sorted order.
func (d Database) Stores() []string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether store has ever been reconciled.
func (d Database) Has(store string) bool {
	_, ok := d[store]
	return ok
}

// Update replaces d[store] with a snapshot built from current. first_seen is
// carried over from previous by title; titles not seen before get now.
// A store with no current listings is kept as an empty snapshot.
func (d Database) Update(store string, current []Listing, previous StoreSnapshot, now time.Time) {
	snap := make(StoreSnapshot, len(current))
	for _, l := range current {
		rec, ok := previous[l.Title]
		if !ok || rec.FirstSeen.IsZero() {
			rec = Record{FirstSeen: now}
		}
		rec.Price = l.Price
		snap[l.Title] = rec
	}
	d[store] = snap
}

// Forget drops a store so its next reconciliation counts as a first run.
func (d Database) Forget(store string) bool {
	if _, ok := d[store]; !ok {
		return false
	}
	delete(d, store)
	return true
}
