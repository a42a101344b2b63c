package scraper

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/storewatch/storewatch/internal/utils"
)

var errInvalidState = errors.New("invalid browser state file")

// browserState is the cookie file layout. It matches Playwright's
// storage_state.json, so state files from earlier deployments load as-is.
type browserState struct {
	Cookies []stateCookie     `json:"cookies"`
	Origins []json.RawMessage `json:"origins"`
}

type stateCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // -1: session cookie
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

func encodeState(cookies []*proto.NetworkCookie) ([]byte, error) {
	st := browserState{
		Cookies: make([]stateCookie, 0, len(cookies)),
		Origins: []json.RawMessage{},
	}
	for _, c := range cookies {
		expires := float64(c.Expires)
		if c.Session || expires <= 0 {
			expires = -1
		}
		st.Cookies = append(st.Cookies, stateCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decodeState reads the cookies of a state file. Cookies that expired
// before now, or lack a name or domain, are skipped.
func decodeState(data []byte, now time.Time) ([]*proto.NetworkCookieParam, error) {
	if !gjson.ValidBytes(data) {
		return nil, errInvalidState
	}
	cookies := gjson.GetBytes(data, "cookies")
	if cookies.Exists() && !cookies.IsArray() {
		return nil, errInvalidState
	}

	var out []*proto.NetworkCookieParam
	cookies.ForEach(func(_, c gjson.Result) bool {
		name, domain := c.Get("name").String(), c.Get("domain").String()
		if name == "" || domain == "" {
			return true
		}
		p := &proto.NetworkCookieParam{
			Name:     name,
			Value:    c.Get("value").String(),
			Domain:   domain,
			Path:     c.Get("path").String(),
			Secure:   c.Get("secure").Bool(),
			HTTPOnly: c.Get("httpOnly").Bool(),
		}
		switch ss := proto.NetworkCookieSameSite(c.Get("sameSite").String()); ss {
		case proto.NetworkCookieSameSiteStrict, proto.NetworkCookieSameSiteLax, proto.NetworkCookieSameSiteNone:
			p.SameSite = ss
		}
		if exp := c.Get("expires").Float(); exp > 0 {
			if exp < float64(now.Unix()) {
				return true
			}
			p.Expires = proto.TimeSinceEpoch(exp)
		}
		out = append(out, p)
		return true
	})
	return out, nil
}

// restoreState loads the state file into b. A missing file is a fresh
// start; any other problem is logged and ignored.
func (f *BrowserFetcher) restoreState(b *rod.Browser) {
	if f.stateFile == "" {
		return
	}
	data, err := os.ReadFile(f.stateFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			utils.Log.Warnf("Could not read browser state %s: %v", f.stateFile, err)
		}
		return
	}
	cookies, err := decodeState(data, time.Now())
	if err != nil {
		utils.Log.Warnf("Ignoring browser state %s: %v", f.stateFile, err)
		return
	}
	if len(cookies) == 0 {
		return
	}
	if err := b.SetCookies(cookies); err != nil {
		utils.Log.Warnf("Could not restore browser cookies: %v", err)
		return
	}
	utils.Log.Infof("Restored %d saved cookies", len(cookies))
}

// SaveState writes the browser's cookies to the state file. It does
// nothing when no state file is configured or the browser never started.
func (f *BrowserFetcher) SaveState() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveState()
}

func (f *BrowserFetcher) saveState() error {
	if f.stateFile == "" || f.browser == nil {
		return nil
	}
	cookies, err := f.browser.GetCookies()
	if err != nil {
		return err
	}
	data, err := encodeState(cookies)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.stateFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(f.stateFile, data, 0o600); err != nil {
		return err
	}
	utils.Log.Debugf("Saved %d cookies to %s", len(cookies), f.stateFile)
	return nil
}
