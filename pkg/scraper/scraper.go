// Package scraper fetches storefront search pages and reads product
// listings off them.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/storage"
	"github.com/storewatch/storewatch/pkg/whttp"
)

var (
	// ErrNoContent means the page was fetched but held nothing that looks
	// like a product.
	ErrNoContent = errors.New("no product content on page")

	ErrUnknownMethod = errors.New("unknown scrape method")
	ErrUnknownEngine = errors.New("unknown fetch engine")
)

// Fetcher returns the HTML of a site's search page.
type Fetcher interface {
	Fetch(ctx context.Context, site Site) (string, error)
}

// Screenshotter is implemented by fetchers that can capture the page they
// last loaded.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Scraper turns a Site into its current listings.
type Scraper interface {
	Scrape(ctx context.Context, site Site) ([]storage.Listing, error)
}

// SiteScraper is the Scraper used by storewatch. It picks a Fetcher by the
// site's engine and extracts listings by the site's method.
type SiteScraper struct {
	fetchers map[Engine]Fetcher
	debug    *Dumper
}

// New returns a SiteScraper. Either fetcher may be nil if no configured site
// uses that engine.
func New(httpFetcher, browserFetcher Fetcher, debug *Dumper) *SiteScraper {
	fetchers := map[Engine]Fetcher{}
	if httpFetcher != nil {
		fetchers[EngineHTTP] = httpFetcher
	}
	if browserFetcher != nil {
		fetchers[EngineBrowser] = browserFetcher
	}
	return &SiteScraper{fetchers: fetchers, debug: debug}
}

// Scrape fetches site and returns its filtered, de-duplicated listings in
// page order.
func (s *SiteScraper) Scrape(ctx context.Context, site Site) ([]storage.Listing, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	f, ok := s.fetchers[site.Engine]
	if !ok {
		return nil, fmt.Errorf("site %s: no fetcher for engine %q: %w", site.Name, site.Engine, ErrUnknownEngine)
	}

	body, err := f.Fetch(ctx, site)
	if body != "" {
		s.debug.HTML(site.Name, body)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", site.Name, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", site.Name, err)
	}

	var raw []storage.Listing
	switch site.Method {
	case MethodJSON:
		raw, err = extractPreloadedJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", site.Name, err)
		}
	case MethodDOM:
		raw = extractDOM(doc, site)
		utils.Log.Debugf("%s: found %d cards", site.Name, len(raw))
		if len(raw) == 0 {
			if sc, ok := f.(Screenshotter); ok {
				if png, err := sc.Screenshot(ctx); err == nil {
					s.debug.PNG(site.Name, "empty", png)
				}
			}
			return nil, fmt.Errorf("%s: %w: no element matches %q (page title %q)",
				site.Name, ErrNoContent, site.CardSelector, whttp.PageTitle(body))
		}
	default:
		return nil, fmt.Errorf("site %s: %w %q", site.Name, ErrUnknownMethod, site.Method)
	}

	listings := filterListings(raw, site)
	for _, l := range listings {
		p := l.Price
		if p == "" {
			p = "no price"
		}
		utils.Log.Debugf("  + %s | %s", utils.Truncate(l.Title, 60), p)
	}
	return listings, nil
}

// Dumper writes debug artifacts for a store into Dir. A nil Dumper or an
// empty Dir disables it. Write failures are logged and otherwise ignored.
type Dumper struct {
	Dir string
}

func NewDumper(dir string) *Dumper {
	if dir == "" {
		return nil
	}
	return &Dumper{Dir: dir}
}

// HTML saves body as <store>_dump.html.
func (d *Dumper) HTML(store, body string) {
	d.write(store+"_dump.html", []byte(body))
}

// PNG saves a screenshot as <store>_<kind>.png.
func (d *Dumper) PNG(store, kind string, data []byte) {
	d.write(store+"_"+kind+".png", data)
}

func (d *Dumper) write(name string, data []byte) {
	if d == nil || d.Dir == "" {
		return
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		utils.Log.Warnf("Could not create debug dir %s: %v", d.Dir, err)
		return
	}
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		utils.Log.Warnf("Could not write debug file %s: %v", path, err)
		return
	}
	utils.Log.Debugf("Saved %s", path)
}
