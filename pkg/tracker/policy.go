package tracker

import "github.com/storewatch/storewatch/pkg/storage"

// StoreSummary is everything one store contributed to a run.
type StoreSummary struct {
	Store       string
	DisplayName string
	URL         string
	Listings    []storage.Listing
	Changes     []Change
	FirstRun    bool
}

// Verdict is the per-store notification decision.
type Verdict struct {
	// Notify is set when the store warrants a message on its own.
	Notify bool
	// Urgent is set when the message should ping the channel.
	Urgent bool
}

// Evaluate decides what a store's run means for notification. A first run
// always notifies but is never urgent, whatever the detector returned.
func Evaluate(firstRun bool, changes []Change) Verdict {
	if firstRun {
		return Verdict{Notify: true}
	}
	if len(changes) == 0 {
		return Verdict{}
	}
	return Verdict{Notify: true, Urgent: HasUrgent(changes)}
}

// HasUrgent reports whether changes hold a new listing or a price drop.
func HasUrgent(changes []Change) bool {
	for _, c := range changes {
		switch c.Kind() {
		case KindNew, KindPriceDrop:
			return true
		}
	}
	return false
}

// Batch is the combined result of one run over all stores.
type Batch struct {
	Stores []StoreSummary
	// Urgent is true when any non-first-run store found a new listing or
	// a price drop.
	Urgent bool
	// Send is true when the batch should be delivered.
	Send bool
}

// NewBatch combines per-store verdicts. When silentIfNoChanges is false the
// batch is always sent. The batch always covers every store.
func NewBatch(stores []StoreSummary, silentIfNoChanges bool) Batch {
	b := Batch{Stores: stores, Send: !silentIfNoChanges}
	for _, s := range stores {
		v := Evaluate(s.FirstRun, s.Changes)
		if v.Notify {
			b.Send = true
		}
		if v.Urgent {
			b.Urgent = true
		}
	}
	return b
}

// Empty reports whether the batch covers no store at all.
func (b Batch) Empty() bool { return len(b.Stores) == 0 }
