package scraper

import (
	"fmt"
	"strings"
)

type Engine string

const (
	// EngineHTTP fetches the page with a plain HTTP client. Enough for
	// server-rendered pages.
	EngineHTTP Engine = "http"
	// EngineBrowser renders the page in headless Chromium.
	EngineBrowser Engine = "browser"
)

type Method string

const (
	MethodDOM  Method = "dom"
	MethodJSON Method = "json"
)

// Site describes one storefront search page and how to read listings off it.
type Site struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
	URL         string `mapstructure:"url"`
	StoreURL    string `mapstructure:"store_url"`
	Engine      Engine `mapstructure:"engine"`
	Method      Method `mapstructure:"method"`

	// WaitSelector is what the browser engine waits for before reading the
	// page. Defaults to CardSelector.
	WaitSelector string `mapstructure:"wait_selector"`

	CardSelector  string `mapstructure:"card_selector"`
	TitleSelector string `mapstructure:"title_selector"`
	// TitleAttr reads the title from an attribute of the TitleSelector
	// element instead of its text.
	TitleAttr     string `mapstructure:"title_attr"`
	PriceSelector string `mapstructure:"price_selector"`
	// PriceAttr reads a bare integer price from an attribute of the
	// PriceSelector element.
	PriceAttr string `mapstructure:"price_attr"`

	// TitleFilter keeps only titles containing it. Empty keeps everything.
	TitleFilter string `mapstructure:"title_filter"`
	// Exclude drops titles containing any of these.
	Exclude []string `mapstructure:"exclude"`
}

// Label is the name shown to humans.
func (s Site) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// Link is the storefront URL used in notifications.
func (s Site) Link() string {
	if s.StoreURL != "" {
		return s.StoreURL
	}
	return s.URL
}

func (s Site) waitSelector() string {
	if s.WaitSelector != "" {
		return s.WaitSelector
	}
	return s.CardSelector
}

// Validate fills in defaults and reports configuration mistakes.
func (s *Site) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("site without name")
	}
	if s.URL == "" {
		return fmt.Errorf("site %s: url is required", s.Name)
	}
	s.Engine = Engine(strings.ToLower(string(s.Engine)))
	if s.Engine == "" {
		s.Engine = EngineBrowser
	}
	if s.Engine != EngineHTTP && s.Engine != EngineBrowser {
		return fmt.Errorf("site %s: %w %q", s.Name, ErrUnknownEngine, s.Engine)
	}
	s.Method = Method(strings.ToLower(string(s.Method)))
	if s.Method == "" {
		s.Method = MethodDOM
	}
	switch s.Method {
	case MethodDOM:
		if s.CardSelector == "" {
			return fmt.Errorf("site %s: card_selector is required for the dom method", s.Name)
		}
	case MethodJSON:
	default:
		return fmt.Errorf("site %s: %w %q", s.Name, ErrUnknownMethod, s.Method)
	}
	return nil
}

const inetSearchURL = "https://www.inet.se/hitta?q=5090" +
	"&filter=%7B%22query%22%3A%22RTX%205090%22%2C%22templateId%22%3A17%7D" +
	"&sortColumn=search&sortDirection=desc"

// DefaultSites are the Swedish RTX 5090 searches storewatch ships with.
func DefaultSites() []Site {
	return []Site{
		{
			Name:          "inet",
			DisplayName:   "inet.se",
			URL:           inetSearchURL,
			StoreURL:      "https://www.inet.se",
			Engine:        EngineBrowser,
			Method:        MethodDOM,
			CardSelector:  `li[data-test-id^="search_product"]`,
			TitleSelector: "h3",
			PriceSelector: `[class*="pvyf6gm"] span[data-test-is-discounted-price]`,
			TitleFilter:   "5090",
		},
		{
			Name:          "elgiganten",
			DisplayName:   "Elgiganten",
			URL:           "https://www.elgiganten.se/gaming/datorkomponenter/grafikkort-gpu?f=30877%3AGeForce%2520RTX%25205090",
			StoreURL:      "https://www.elgiganten.se",
			Engine:        EngineBrowser,
			Method:        MethodDOM,
			CardSelector:  `li[data-cro="product-item"]`,
			TitleSelector: "h2",
			PriceSelector: "[data-primary-price]",
			PriceAttr:     "data-primary-price",
			TitleFilter:   "5090",
		},
		{
			Name:         "komplett",
			DisplayName:  "Komplett.se",
			URL:          "https://www.komplett.se/search?q=rtx+5090",
			StoreURL:     "https://www.komplett.se",
			Engine:       EngineBrowser,
			Method:       MethodJSON,
			WaitSelector: "[preloadedsearchresult]",
			TitleFilter:  "5090",
			Exclude:      []string{"Komplett-PC", "Predator", "Legion", "OMEN", "Zephyrus"},
		},
		{
			Name:          "webhallen",
			DisplayName:   "Webhallen",
			URL:           "https://www.webhallen.com/se/search?searchString=rtx+5090",
			StoreURL:      "https://www.webhallen.com",
			Engine:        EngineBrowser,
			Method:        MethodDOM,
			CardSelector:  "div.product-grid-item",
			TitleSelector: "a.grid-link",
			TitleAttr:     "title",
			PriceSelector: ".price-value span",
			TitleFilter:   "GeForce RTX 5090",
		},
	}
}
