// Package notify renders a run's results as Discord webhook messages and
// delivers them.
package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/tracker"
)

// Discord limits.
const (
	maxEmbedsPerMessage = 10
	maxMessageChars     = 6000
	maxDescriptionChars = 4096
	maxFieldValueChars  = 1024
)

const (
	ColorGreen  = 0x2ECC71
	ColorRed    = 0xE74C3C
	ColorOrange = 0xE67E22
	ColorGrey   = 0x95A5A6
)

const (
	productWidth = 38
	noPrice      = "\u2014"

	markerNew  = "\U0001f195"
	markerDrop = "\U0001f4c9"
	markerUp   = "\U0001f4c8"
	markerGone = "❌"
)

type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds"`
}

type Embed struct {
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Footer struct {
	Text string `json:"text"`
}

// Compose renders b as one embed per store, split over as many messages as
// Discord's limits require. The urgent mention goes on the first message
// only.
func Compose(b tracker.Batch, query string, now time.Time) []Message {
	ts := now.UTC().Format("2006-01-02T15:04:05Z")
	embeds := make([]Embed, 0, len(b.Stores))
	for _, s := range b.Stores {
		embeds = append(embeds, StoreEmbed(s, query, ts))
	}

	var msgs []Message
	var cur Message
	size := 0
	for _, e := range embeds {
		n := embedSize(e)
		if len(cur.Embeds) > 0 && (len(cur.Embeds) == maxEmbedsPerMessage || size+n > maxMessageChars) {
			msgs = append(msgs, cur)
			cur, size = Message{}, 0
		}
		cur.Embeds = append(cur.Embeds, e)
		size += n
	}
	if len(cur.Embeds) > 0 {
		msgs = append(msgs, cur)
	}

	if b.Urgent && len(msgs) > 0 {
		msgs[0].Content = fmt.Sprintf("@here  New %s listing or price drop detected!", query)
	}
	return msgs
}

// StoreEmbed renders one store's listings and changes.
func StoreEmbed(s tracker.StoreSummary, query, timestamp string) Embed {
	hasChanges := len(s.Changes) > 0

	e := Embed{
		Title:       fmt.Sprintf("\U0001f5a5\ufe0f  %s \u2014 %s", query, s.DisplayName),
		URL:         s.URL,
		Description: listingTable(s),
		Color:       storeColor(s),
		Footer:      &Footer{Text: storeStatus(s)},
		Timestamp:   timestamp,
	}
	if hasChanges && !s.FirstRun {
		e.Fields = append(e.Fields, Field{
			Name:  "⚡ Changes detected",
			Value: joinCapped(changeLines(s.Changes), maxFieldValueChars),
		})
	}
	return e
}

func listingTable(s tracker.StoreSummary) string {
	markers := make(map[string]string, len(s.Changes))
	var gone []string
	for _, c := range s.Changes {
		switch c.Kind() {
		case tracker.KindNew:
			markers[c.ListingTitle()] = markerNew
		case tracker.KindPriceDrop:
			markers[c.ListingTitle()] = markerDrop
		case tracker.KindPriceUp:
			markers[c.ListingTitle()] = markerUp
		case tracker.KindGone:
			gone = append(gone, c.ListingTitle())
		}
	}

	header := fmt.Sprintf("%-3s %-*s %12s", "#", productWidth, "Product", "Price")
	divider := strings.Repeat("─", utf8.RuneCountInString(header))
	rows := []string{header, divider}

	for i, l := range s.Listings {
		marker, ok := markers[l.Title]
		if !ok {
			marker = "  "
		}
		p := l.Price
		if p == "" {
			p = noPrice
		}
		rows = append(rows, fmt.Sprintf("%s%-2d %-*s %12s", marker, i+1, productWidth, utils.Truncate(l.Title, productWidth), p))
	}

	if len(gone) > 0 {
		rows = append(rows, divider, "Gone this run:")
		for _, t := range gone {
			rows = append(rows, markerGone+"  "+utils.Truncate(t, productWidth))
		}
	}
	return fenced(rows, maxDescriptionChars)
}

func changeLines(changes []tracker.Change) []string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		switch c := c.(type) {
		case tracker.New:
			p := c.Price
			if p == "" {
				p = noPrice
			}
			lines = append(lines, fmt.Sprintf("%s **New:** %s\n    Price: **%s**", markerNew, c.Title, p))
		case tracker.PriceDrop:
			lines = append(lines, fmt.Sprintf("%s **Price drop:** %s\n    %s → **%s**",
				markerDrop, utils.Truncate(c.Title, 45), c.OldPrice, c.NewPrice))
		case tracker.PriceUp:
			lines = append(lines, fmt.Sprintf("%s **Price increase:** %s\n    %s → %s",
				markerUp, utils.Truncate(c.Title, 42), c.OldPrice, c.NewPrice))
		case tracker.Gone:
			lines = append(lines, fmt.Sprintf("%s **Gone:** %s", markerGone, c.Title))
		}
	}
	return lines
}

func storeColor(s tracker.StoreSummary) int {
	switch {
	case len(s.Listings) == 0:
		return ColorGrey
	case s.FirstRun || len(s.Changes) == 0:
		return ColorGreen
	case tracker.HasUrgent(s.Changes):
		return ColorRed
	}
	return ColorOrange
}

func storeStatus(s tracker.StoreSummary) string {
	switch {
	case s.FirstRun:
		return fmt.Sprintf("\U0001f4cb Initial snapshot \u2014 %d listing(s)", len(s.Listings))
	case len(s.Changes) > 0:
		return fmt.Sprintf("⚠\ufe0f  %d change(s) detected", len(s.Changes))
	case len(s.Listings) == 0:
		return "⚠\ufe0f  No listings found"
	}
	return fmt.Sprintf("✅  %d listing(s) \u2014 no changes", len(s.Listings))
}

// fenced wraps rows in a code block of at most limit runes, dropping
// trailing rows when needed.
func fenced(rows []string, limit int) string {
	wrap := func(body string) string { return "```\n" + body + "\n```" }

	out := wrap(strings.Join(rows, "\n"))
	if utf8.RuneCountInString(out) <= limit {
		return out
	}
	for n := len(rows) - 1; n > 0; n-- {
		out = wrap(strings.Join(rows[:n], "\n") + fmt.Sprintf("\n… %d more", len(rows)-n))
		if utf8.RuneCountInString(out) <= limit {
			return out
		}
	}
	return utils.Truncate(out, limit)
}

// joinCapped joins lines with newlines into at most limit runes, dropping
// trailing lines when needed.
func joinCapped(lines []string, limit int) string {
	out := strings.Join(lines, "\n")
	if utf8.RuneCountInString(out) <= limit {
		return out
	}
	for n := len(lines) - 1; n > 0; n-- {
		out = strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… and %d more", len(lines)-n)
		if utf8.RuneCountInString(out) <= limit {
			return out
		}
	}
	return utils.Truncate(out, limit)
}

func embedSize(e Embed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	return n
}
