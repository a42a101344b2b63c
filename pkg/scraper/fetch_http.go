package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/storewatch/storewatch/pkg/whttp"
)

// HTTPFetcher fetches pages with colly over the shared retryablehttp
// transport. It does not run JavaScript.
type HTTPFetcher struct {
	client  *retryablehttp.Client
	timeout time.Duration
}

func NewHTTPFetcher(client *retryablehttp.Client, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: client, timeout: timeout}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, site Site) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := colly.NewCollector(
		colly.UserAgent(whttp.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(ctxTransport{ctx: ctx, base: f.client.StandardClient().Transport})
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", whttp.AcceptLanguage)
	})

	var body string
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})

	if err := c.Visit(site.URL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return body, fmt.Errorf("GET %s: %w", site.URL, err)
	}
	if body == "" {
		return "", fmt.Errorf("GET %s: %w: empty body", site.URL, ErrNoContent)
	}
	return body, nil
}

// ctxTransport binds every request to ctx so a cancelled run aborts the
// fetch in flight.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
