package tracker

import (
	"testing"

	"github.com/storewatch/storewatch/pkg/storage"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		firstRun bool
		changes  []Change
		expected Verdict
	}{
		{"first run with zero records", true, nil, Verdict{Notify: true}},
		{"first run is never urgent", true, []Change{New{Title: "A"}}, Verdict{Notify: true}},
		{"no changes stays silent", false, nil, Verdict{}},
		{"new is urgent", false, []Change{New{Title: "A"}}, Verdict{Notify: true, Urgent: true}},
		{"drop is urgent", false, []Change{PriceDrop{Title: "A"}}, Verdict{Notify: true, Urgent: true}},
		{"price up is not urgent", false, []Change{PriceUp{Title: "A"}}, Verdict{Notify: true}},
		{"gone is not urgent", false, []Change{Gone{Title: "A"}}, Verdict{Notify: true}},
		{"mixed", false, []Change{Gone{Title: "A"}, PriceUp{Title: "B"}, PriceDrop{Title: "C"}}, Verdict{Notify: true, Urgent: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.firstRun, tt.changes); got != tt.expected {
				t.Fatalf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestNewBatch(t *testing.T) {
	quiet := StoreSummary{Store: "inet", Listings: []storage.Listing{{Title: "A"}}}
	first := StoreSummary{Store: "komplett", FirstRun: true, Changes: []Change{New{Title: "X"}}}
	up := StoreSummary{Store: "webhallen", Changes: []Change{PriceUp{Title: "A"}}}
	drop := StoreSummary{Store: "elgiganten", Changes: []Change{PriceDrop{Title: "A"}}}

	tests := []struct {
		name       string
		stores     []StoreSummary
		silent     bool
		wantSend   bool
		wantUrgent bool
	}{
		{"silent run with no changes", []StoreSummary{quiet}, true, false, false},
		{"silence disabled", []StoreSummary{quiet}, false, true, false},
		{"first run sends without ping", []StoreSummary{quiet, first}, true, true, false},
		{"non urgent change sends", []StoreSummary{quiet, up}, true, true, false},
		{"drop pings", []StoreSummary{quiet, first, drop}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBatch(tt.stores, tt.silent)
			if b.Send != tt.wantSend || b.Urgent != tt.wantUrgent {
				t.Fatalf("expected send=%v urgent=%v, got send=%v urgent=%v", tt.wantSend, tt.wantUrgent, b.Send, b.Urgent)
			}
			if len(b.Stores) != len(tt.stores) {
				t.Fatalf("batch must cover every store: expected %d, got %d", len(tt.stores), len(b.Stores))
			}
		})
	}
}
