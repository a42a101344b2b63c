// Package whttp builds the HTTP clients used to talk to storefronts and
// webhooks.
package whttp

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	UserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	AcceptLanguage = "sv-SE,sv;q=0.9,en;q=0.8"
	DefaultTimeout = 30 * time.Second
)

type Options struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration
	// Proxy is an optional proxy URL, e.g. http://127.0.0.1:8080.
	Proxy string
	// RetryMax is the number of retries after the first attempt. Zero means
	// a single best-effort attempt.
	RetryMax int
	// Log receives the client's request logging at debug level. nil
	// disables it.
	Log logrus.FieldLogger
}

// NewClient returns a retryablehttp client configured from opts.
func NewClient(opts Options) (*retryablehttp.Client, error) {
	c := retryablehttp.NewClient()
	c.RetryMax = opts.RetryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	if opts.Log != nil {
		c.Logger = leveled{opts.Log}
	} else {
		c.Logger = nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.HTTPClient.Timeout = timeout

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		t, ok := c.HTTPClient.Transport.(*http.Transport)
		if !ok {
			t = http.DefaultTransport.(*http.Transport).Clone()
		}
		t.Proxy = http.ProxyURL(proxyURL)
		c.HTTPClient.Transport = t
	}

	// Keep the last response on the final attempt so callers see the
	// real status code instead of a generic "giving up" error.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c, nil
}

// leveled adapts a logrus logger to retryablehttp.LeveledLogger. Everything
// is logged at debug level; callers decide what a failure means.
type leveled struct {
	log logrus.FieldLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }
func (l leveled) Info(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }

func (l leveled) with(kv []interface{}) logrus.FieldLogger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.log.WithFields(fields)
}

// PageTitle returns the text of the first <title> element of an HTML body,
// trimmed and collapsed to one line. It is empty when there is none.
func PageTitle(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}
	title, _ := traverse(doc)
	return strings.Join(strings.Fields(strings.ToValidUTF8(title, "")), " ")
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}
