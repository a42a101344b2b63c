package scraper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/price"
	"github.com/storewatch/storewatch/pkg/storage"
)

const (
	fallbackTitleLen = 80
	preloadedAttr    = "preloadedsearchresult"
)

// extractDOM reads one listing per card. Titles and prices are not filtered
// here.
func extractDOM(doc *goquery.Document, site Site) []storage.Listing {
	var listings []storage.Listing
	doc.Find(site.CardSelector).Each(func(_ int, card *goquery.Selection) {
		listings = append(listings, storage.Listing{
			Title: cardTitle(card, site),
			Price: cardPrice(card, site),
		})
	})
	return listings
}

func cardTitle(card *goquery.Selection, site Site) string {
	var title string
	if site.TitleSelector != "" {
		el := card.Find(site.TitleSelector).First()
		if site.TitleAttr != "" {
			title, _ = el.Attr(site.TitleAttr)
		} else {
			title = renderedText(el)
		}
	}
	title = storage.NormalizeTitle(title)
	if title == "" {
		title = renderedText(card)
		if r := []rune(title); len(r) > fallbackTitleLen {
			title = string(r[:fallbackTitleLen])
		}
		title = storage.NormalizeTitle(title)
	}
	return title
}

// renderedText approximates what a browser shows for sel: runs of markup
// whitespace collapse to one space. No-break spaces are content and stay.
func renderedText(sel *goquery.Selection) string {
	return strings.Join(strings.FieldsFunc(sel.Text(), isMarkupSpace), " ")
}

func isMarkupSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}

// cardPrice returns the displayed price of a card, or "" when none looks
// like one.
func cardPrice(card *goquery.Selection, site Site) string {
	if site.PriceSelector == "" {
		return ""
	}
	if site.PriceAttr != "" {
		raw, ok := card.Find(site.PriceSelector).First().Attr(site.PriceAttr)
		if !ok || !isAllDigits(raw) {
			return ""
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ""
		}
		return price.FormatKronor(v)
	}

	var out string
	card.Find(site.PriceSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := price.Clean(el.Text())
		v, ok := price.ParseValue(text)
		if !ok {
			return true
		}
		if strings.Contains(strings.ToLower(text), "kr") || strings.Contains(text, ":-") || v >= 1000 {
			out = text
			return false
		}
		return true
	})
	return out
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// extractPreloadedJSON reads the search result JSON some stores embed in a
// preloadedsearchresult attribute.
func extractPreloadedJSON(doc *goquery.Document) ([]storage.Listing, error) {
	raw, ok := doc.Find("[" + preloadedAttr + "]").First().Attr(preloadedAttr)
	if !ok {
		return nil, fmt.Errorf("%w: %s attribute not found", ErrNoContent, preloadedAttr)
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrNoContent, preloadedAttr)
	}

	products := gjson.Get(raw, "products").Array()
	utils.Log.Debugf("%d products in preloaded JSON", len(products))

	listings := make([]storage.Listing, 0, len(products))
	for _, p := range products {
		l := storage.Listing{Title: p.Get("name").String()}
		if lp := p.Get("price.listPrice"); lp.Type == gjson.String && lp.String() != "" {
			l.Price = normalizeListPrice(lp.String())
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// normalizeListPrice turns "35 490:-" into "35 490 kr".
func normalizeListPrice(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(price.Clean(s), ":-", " kr"))
}

// filterListings applies the title filter and exclusions, drops untitled
// entries and collapses duplicate titles keeping the first.
func filterListings(in []storage.Listing, site Site) []storage.Listing {
	seen := make(map[string]struct{}, len(in))
	var out []storage.Listing
	for _, l := range in {
		if strings.TrimSpace(l.Title) == "" {
			continue
		}
		if site.TitleFilter != "" && !strings.Contains(l.Title, site.TitleFilter) {
			continue
		}
		if excluded(l.Title, site.Exclude) {
			continue
		}
		if _, dup := seen[l.Title]; dup {
			continue
		}
		seen[l.Title] = struct{}{}
		out = append(out, l)
	}
	return out
}

func excluded(title string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(title, kw) {
			return true
		}
	}
	return false
}
