package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/whttp"
)

const (
	navigationTimeout = 60 * time.Second
	contentTimeout    = 25 * time.Second
	cookieTimeout     = 3 * time.Second
)

const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

const removeOverlaysScript = `() => {
	['[role="dialog"]', '.modal', '[class*="cookie"]', '[id*="cookie"]',
	 '[class*="overlay"]', '[class*="consent"]', '#onetrust-banner-sdk',
	 '#cookie-information-template-wrapper']
	.forEach(s => document.querySelectorAll(s).forEach(el => el.remove()));
}`

// Cookie banner buttons, tried in order.
var cookieButtons = []string{
	`button[aria-label='Godkänn alla']`,
	`button[onclick*='submitAllCategories']`,
	`#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,
	`[id*='accept'][class*='cookie']`,
}

// Cookie banner button texts, tried in order after cookieButtons.
var cookieTexts = []string{
	"Godkänn alla",
	"Acceptera alla",
	"Accept all",
	"Acceptera",
	"Godkann",
	"Accept",
	"OK",
}

// BrowserFetcher renders pages in a headless Chromium driven by rod. The
// browser is started on first use and one tab is reused for every site.
type BrowserFetcher struct {
	bin       string
	stateFile string
	debug     *Dumper

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// BrowserOptions configures a BrowserFetcher.
type BrowserOptions struct {
	// Bin is the Chromium binary. Empty uses rod's managed browser.
	Bin string
	// StateFile keeps cookies between runs so consent banners stay
	// dismissed. Empty disables it.
	StateFile string
}

func NewBrowserFetcher(opts BrowserOptions, debug *Dumper) *BrowserFetcher {
	return &BrowserFetcher{bin: opts.Bin, stateFile: opts.StateFile, debug: debug}
}

func (f *BrowserFetcher) start() (*rod.Page, error) {
	if f.page != nil {
		return f.page, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled")
	if f.bin != "" {
		l = l.Bin(f.bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	f.restoreState(b)

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.Close()
		l.Kill()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      whttp.UserAgent,
		AcceptLanguage: whttp.AcceptLanguage,
	}); err != nil {
		utils.Log.Debugf("Could not override user agent: %v", err)
	}
	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		utils.Log.Debugf("Could not install init script: %v", err)
	}

	utils.Log.Debug("Browser started")
	f.launcher, f.browser, f.page = l, b, page
	return page, nil
}

// Fetch loads site.URL, dismisses cookie banners and waits for the site's
// content selector. A page whose content never shows up is still returned
// so the caller can inspect it; a timeout screenshot is saved for it.
func (f *BrowserFetcher) Fetch(ctx context.Context, site Site) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, err := f.start()
	if err != nil {
		return "", err
	}

	nav := page.Context(ctx).Timeout(navigationTimeout)
	if err := nav.Navigate(site.URL); err != nil {
		f.screenshot(ctx, site.Name, "timeout")
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := nav.WaitLoad(); err != nil {
		utils.Log.Debugf("%s: waiting for load event: %v", site.Name, err)
	}

	f.dismissCookies(ctx, page)

	if sel := site.waitSelector(); sel != "" {
		el, err := page.Context(ctx).Timeout(contentTimeout).Element(sel)
		if err == nil {
			err = el.Context(ctx).Timeout(contentTimeout).WaitVisible()
		}
		switch {
		case err == nil:
			utils.Log.Debugf("%s: content visible", site.Name)
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			utils.Log.Warnf("%s: timed out waiting for %q", site.Name, sel)
			f.screenshot(ctx, site.Name, "timeout")
		default:
			utils.Log.Warnf("%s: waiting for %q: %v", site.Name, sel, err)
		}
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return html, nil
}

func (f *BrowserFetcher) dismissCookies(ctx context.Context, page *rod.Page) {
	p := page.Context(ctx)
	deadline := time.Now().Add(cookieTimeout)
	for {
		if el := findCookieButton(p); el != nil {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
				utils.Log.Debug("Cookie popup dismissed")
				sleep(ctx, 1500*time.Millisecond)
				return
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		sleep(ctx, 250*time.Millisecond)
	}

	if _, err := p.Eval(removeOverlaysScript); err != nil {
		utils.Log.Debugf("Could not remove overlays: %v", err)
	}
	sleep(ctx, 500*time.Millisecond)
}

func findCookieButton(p *rod.Page) *rod.Element {
	for _, sel := range cookieButtons {
		if ok, el, err := p.Has(sel); err == nil && ok && visible(el) {
			return el
		}
	}
	for _, text := range cookieTexts {
		if ok, el, err := p.HasR("button", text); err == nil && ok && visible(el) {
			return el
		}
	}
	return nil
}

func visible(el *rod.Element) bool {
	v, err := el.Visible()
	return err == nil && v
}

func (f *BrowserFetcher) screenshot(ctx context.Context, store, kind string) {
	png, err := f.Screenshot(ctx)
	if err != nil {
		utils.Log.Debugf("%s: screenshot failed: %v", store, err)
		return
	}
	f.debug.PNG(store, kind, png)
}

// Screenshot captures the tab as it is now. It is only meaningful after
// Fetch.
func (f *BrowserFetcher) Screenshot(ctx context.Context) ([]byte, error) {
	if f.page == nil {
		return nil, errors.New("browser not started")
	}
	return f.page.Context(ctx).Screenshot(true, nil)
}

// Close saves the cookie state and shuts the browser down. The fetcher can
// be reused afterwards and will start a new browser.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.saveState(); err != nil {
		utils.Log.Warnf("Could not save browser state: %v", err)
	}

	var err error
	if f.browser != nil {
		err = f.browser.Close()
	}
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher.Cleanup()
	}
	f.launcher, f.browser, f.page = nil, nil, nil
	return err
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
