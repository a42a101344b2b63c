package storage

import (
	"time"

	"github.com/storewatch/storewatch/pkg/price"
)

// StoreStats summarizes one store's snapshot.
type StoreStats struct {
	Store    string    `json:"store"`
	Listings int       `json:"listings"`
	Priced   int       `json:"priced"`
	Newest   time.Time `json:"newest"`

	// Cheapest* describe the lowest priced listing, by normalized value. Ties go
	// to the alphabetically first title.
	CheapestTitle string `json:"cheapest_title,omitempty"`
	CheapestPrice string `json:"cheapest_price,omitempty"`
	CheapestValue uint64 `json:"cheapest_value,omitempty"`
}

// Stats returns per-store statistics in store name order.
func (d Database) Stats() []StoreStats {
	out := make([]StoreStats, 0, len(d))
	for _, store := range d.Stores() {
		snap := d[store]
		st := StoreStats{Store: store, Listings: len(snap)}
		for _, title := range snap.Titles() {
			rec := snap[title]
			if rec.FirstSeen.After(st.Newest) {
				st.Newest = rec.FirstSeen
			}
			v, ok := price.ParseValue(rec.Price)
			if !ok {
				continue
			}
			st.Priced++
			if st.Priced == 1 || v < st.CheapestValue {
				st.CheapestTitle, st.CheapestPrice, st.CheapestValue = title, rec.Price, v
			}
		}
		out = append(out, st)
	}
	return out
}
