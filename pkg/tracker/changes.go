// Package tracker reconciles freshly scraped listings with the persisted
// snapshot of a store and decides whether a run is worth a notification.
package tracker

import (
	"sort"

	"github.com/storewatch/storewatch/pkg/price"
	"github.com/storewatch/storewatch/pkg/storage"
)

type Kind int

const (
	KindNew Kind = iota
	KindPriceDrop
	KindPriceUp
	KindGone
)

func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindPriceDrop:
		return "price_drop"
	case KindPriceUp:
		return "price_up"
	case KindGone:
		return "gone"
	}
	return "unknown"
}

// Change is one classified difference between a scrape and the previous
// snapshot. The set of implementations is closed: New, PriceDrop, PriceUp
// and Gone.
type Change interface {
	Kind() Kind
	ListingTitle() string
	sealed()
}

// New is a title that was not in the previous snapshot.
type New struct {
	Title string
	Price string
}

type PriceDrop struct {
	Title    string
	OldPrice string
	NewPrice string
}

type PriceUp struct {
	Title    string
	OldPrice string
	NewPrice string
}

// Gone is a title that was in the previous snapshot but not in this scrape.
type Gone struct {
	Title string
}

func (New) Kind() Kind       { return KindNew }
func (PriceDrop) Kind() Kind { return KindPriceDrop }
func (PriceUp) Kind() Kind   { return KindPriceUp }
func (Gone) Kind() Kind      { return KindGone }

func (c New) ListingTitle() string       { return c.Title }
func (c PriceDrop) ListingTitle() string { return c.Title }
func (c PriceUp) ListingTitle() string   { return c.Title }
func (c Gone) ListingTitle() string      { return c.Title }

func (New) sealed()       {}
func (PriceDrop) sealed() {}
func (PriceUp) sealed()   {}
func (Gone) sealed()      {}

// DetectChanges classifies current against previous. Records for current
// listings come first, in scrape order, followed by Gone records in sorted
// title order. A listing whose price appears or disappears is not a change.
// current is expected to hold unique titles.
func DetectChanges(current []storage.Listing, previous storage.StoreSnapshot) []Change {
	var changes []Change
	seen := make(map[string]struct{}, len(current))

	for _, l := range current {
		seen[l.Title] = struct{}{}
		old, ok := previous[l.Title]
		if !ok {
			changes = append(changes, New{Title: l.Title, Price: l.Price})
			continue
		}
		cmp, ok := price.Compare(old.Price, l.Price)
		if !ok {
			continue
		}
		switch {
		case cmp < 0:
			changes = append(changes, PriceDrop{Title: l.Title, OldPrice: old.Price, NewPrice: l.Price})
		case cmp > 0:
			changes = append(changes, PriceUp{Title: l.Title, OldPrice: old.Price, NewPrice: l.Price})
		}
	}

	var gone []string
	for title := range previous {
		if _, ok := seen[title]; !ok {
			gone = append(gone, title)
		}
	}
	sort.Strings(gone)
	for _, title := range gone {
		changes = append(changes, Gone{Title: title})
	}
	return changes
}

// Count returns how many changes of kind k are in changes.
func Count(changes []Change, k Kind) int {
	n := 0
	for _, c := range changes {
		if c.Kind() == k {
			n++
		}
	}
	return n
}
