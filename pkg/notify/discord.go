package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/tracker"
)

const DefaultTimeout = 10 * time.Second

var ErrNoWebhook = errors.New("webhook URL not set")

// Discord posts composed batches to a Discord webhook.
type Discord struct {
	webhook string
	query   string
	client  *resty.Client
	now     func() time.Time
}

type DiscordOptions struct {
	// Query is the product label used in titles and the mention.
	Query   string
	Proxy   string
	Timeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewDiscord(webhook string, opts DiscordOptions) *Discord {
	client := resty.New()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Discord{webhook: webhook, query: opts.Query, client: client, now: now}
}

// Notify composes b and sends it. Each message is a single POST; the first
// failure stops delivery.
func (d *Discord) Notify(ctx context.Context, b tracker.Batch) error {
	if d.webhook == "" {
		return ErrNoWebhook
	}
	msgs := Compose(b, d.query, d.now())
	for i, m := range msgs {
		if err := d.Send(ctx, m); err != nil {
			return fmt.Errorf("message %d/%d: %w", i+1, len(msgs), err)
		}
	}
	utils.Log.Infof("Summary sent (%d embed(s) in %d message(s))", len(b.Stores), len(msgs))
	return nil
}

func (d *Discord) Send(ctx context.Context, m Message) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(m).
		Post(d.webhook)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s: %s", resp.Status(), utils.Truncate(string(resp.Body()), 200))
	}
	return nil
}
