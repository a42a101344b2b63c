package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/storewatch/storewatch/pkg/storage"
	"github.com/storewatch/storewatch/pkg/tracker"
)

var fixedNow = time.Date(2025, 2, 3, 4, 5, 6, 0, time.FixedZone("CET", 3600))

func TestStoreEmbedTable(t *testing.T) {
	s := tracker.StoreSummary{
		Store:       "inet",
		DisplayName: "inet.se",
		URL:         "https://www.inet.se",
		Listings: []storage.Listing{
			{Title: "ASUS ROG Astral GeForce RTX 5090 32GB GDDR7 OC Edition", Price: "35 990 kr"},
			{Title: "MSI RTX 5090", Price: ""},
		},
		Changes: []tracker.Change{
			tracker.PriceDrop{Title: "ASUS ROG Astral GeForce RTX 5090 32GB GDDR7 OC Edition", OldPrice: "38 990 kr", NewPrice: "35 990 kr"},
			tracker.Gone{Title: "Zotac RTX 5090"},
		},
	}
	e := StoreEmbed(s, "RTX 5090", "2025-02-03T03:05:06Z")

	header := fmt.Sprintf("%-3s %-38s %12s", "#", "Product", "Price")
	divider := strings.Repeat("─", 55)
	want := strings.Join([]string{
		"```",
		header,
		divider,
		markerDrop + "1  ASUS ROG Astral GeForce RTX 5090 32GB…    35 990 kr",
		"  2  MSI RTX 5090                                      \u2014",
		divider,
		"Gone this run:",
		markerGone + "  Zotac RTX 5090",
		"```",
	}, "\n")
	if e.Description != want {
		t.Fatalf("unexpected table:\n%s\nwant:\n%s", e.Description, want)
	}
	if e.Color != ColorRed {
		t.Fatalf("expected red, got %#x", e.Color)
	}
	if len(e.Fields) != 1 || !strings.Contains(e.Fields[0].Value, "38 990 kr → **35 990 kr**") {
		t.Fatalf("unexpected fields %#v", e.Fields)
	}
	if !strings.Contains(e.Footer.Text, "2 change(s) detected") {
		t.Fatalf("unexpected footer %q", e.Footer.Text)
	}
	if !strings.Contains(e.Title, "RTX 5090 \u2014 inet.se") || e.URL != "https://www.inet.se" {
		t.Fatalf("unexpected title/url %q %q", e.Title, e.URL)
	}
}

func TestStoreEmbedColorsAndStatus(t *testing.T) {
	listings := []storage.Listing{{Title: "A", Price: "1 kr"}}
	tests := []struct {
		name       string
		s          tracker.StoreSummary
		color      int
		status     string
		wantFields bool
	}{
		{"no listings", tracker.StoreSummary{}, ColorGrey, "No listings found", false},
		{"quiet", tracker.StoreSummary{Listings: listings}, ColorGreen, "1 listing(s) \u2014 no changes", false},
		{"first run", tracker.StoreSummary{Listings: listings, FirstRun: true, Changes: []tracker.Change{tracker.New{Title: "A"}}}, ColorGreen, "Initial snapshot \u2014 1 listing(s)", false},
		{"price up", tracker.StoreSummary{Listings: listings, Changes: []tracker.Change{tracker.PriceUp{Title: "A"}}}, ColorOrange, "1 change(s) detected", true},
		{"new", tracker.StoreSummary{Listings: listings, Changes: []tracker.Change{tracker.New{Title: "A"}}}, ColorRed, "1 change(s) detected", true},
		{"all gone", tracker.StoreSummary{Changes: []tracker.Change{tracker.Gone{Title: "A"}}}, ColorGrey, "1 change(s) detected", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := StoreEmbed(tt.s, "RTX 5090", "")
			if e.Color != tt.color {
				t.Fatalf("expected color %#x, got %#x", tt.color, e.Color)
			}
			if !strings.Contains(e.Footer.Text, tt.status) {
				t.Fatalf("expected status containing %q, got %q", tt.status, e.Footer.Text)
			}
			if (len(e.Fields) > 0) != tt.wantFields {
				t.Fatalf("expected fields=%v, got %#v", tt.wantFields, e.Fields)
			}
		})
	}
}

func TestComposeMentionAndSplit(t *testing.T) {
	var stores []tracker.StoreSummary
	for i := 0; i < 12; i++ {
		stores = append(stores, tracker.StoreSummary{Store: fmt.Sprintf("s%d", i), DisplayName: fmt.Sprintf("Store %d", i)})
	}
	stores[3].Changes = []tracker.Change{tracker.New{Title: "X", Price: "1 kr"}}

	msgs := Compose(tracker.NewBatch(stores, true), "RTX 5090", fixedNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if len(msgs[0].Embeds) != 10 || len(msgs[1].Embeds) != 2 {
		t.Fatalf("expected 10+2 embeds, got %d+%d", len(msgs[0].Embeds), len(msgs[1].Embeds))
	}
	if msgs[0].Content != "@here  New RTX 5090 listing or price drop detected!" {
		t.Fatalf("unexpected content %q", msgs[0].Content)
	}
	if msgs[1].Content != "" {
		t.Fatalf("mention repeated on follow-up message: %q", msgs[1].Content)
	}
	if got := msgs[0].Embeds[0].Timestamp; got != "2025-02-03T03:05:06Z" {
		t.Fatalf("expected UTC timestamp, got %q", got)
	}
}

func TestComposeFirstRunNoMention(t *testing.T) {
	b := tracker.NewBatch([]tracker.StoreSummary{{
		Store:    "komplett",
		FirstRun: true,
		Changes:  []tracker.Change{tracker.New{Title: "X"}},
	}}, true)
	msgs := Compose(b, "RTX 5090", fixedNow)
	if len(msgs) != 1 || msgs[0].Content != "" {
		t.Fatalf("expected one message without mention, got %#v", msgs)
	}
}

func TestComposeLimits(t *testing.T) {
	var listings []storage.Listing
	var changes []tracker.Change
	for i := 0; i < 200; i++ {
		title := fmt.Sprintf("Some very long RTX 5090 product title number %03d", i)
		listings = append(listings, storage.Listing{Title: title, Price: "35 990 kr"})
		changes = append(changes, tracker.New{Title: title, Price: "35 990 kr"})
	}
	s := tracker.StoreSummary{Store: "big", Listings: listings, Changes: changes}

	e := StoreEmbed(s, "RTX 5090", "")
	if n := utf8.RuneCountInString(e.Description); n > maxDescriptionChars {
		t.Fatalf("description has %d runes", n)
	}
	if !strings.HasSuffix(e.Description, "```") || !strings.Contains(e.Description, "more") {
		t.Fatalf("expected closed, truncated table, got tail %q", e.Description[len(e.Description)-40:])
	}
	if n := utf8.RuneCountInString(e.Fields[0].Value); n > maxFieldValueChars {
		t.Fatalf("field value has %d runes", n)
	}

	msgs := Compose(tracker.Batch{Stores: []tracker.StoreSummary{s, s}}, "RTX 5090", fixedNow)
	if len(msgs) != 2 {
		t.Fatalf("expected oversized embeds to be split over 2 messages, got %d", len(msgs))
	}
}

func TestDiscordNotify(t *testing.T) {
	var mu sync.Mutex
	var got []Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m Message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, DiscordOptions{Query: "RTX 5090", Now: func() time.Time { return fixedNow }})
	b := tracker.NewBatch([]tracker.StoreSummary{{Store: "inet", DisplayName: "inet.se"}}, false)
	if err := d.Notify(context.Background(), b); err != nil {
		t.Fatalf("notify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || len(got[0].Embeds) != 1 {
		t.Fatalf("expected one message with one embed, got %#v", got)
	}
	if got[0].Embeds[0].Color != ColorGrey {
		t.Fatalf("unexpected color %#x", got[0].Embeds[0].Color)
	}
}

func TestDiscordErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := tracker.NewBatch([]tracker.StoreSummary{{Store: "inet"}}, false)
	err := NewDiscord(srv.URL, DiscordOptions{}).Notify(context.Background(), b)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}

	if err := NewDiscord("", DiscordOptions{}).Notify(context.Background(), b); err != ErrNoWebhook {
		t.Fatalf("expected ErrNoWebhook, got %v", err)
	}
}
