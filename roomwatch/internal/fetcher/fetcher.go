// Package fetcher implements the HTTP-only acquisition path: a single GET
// whose HTML is queried with CSS selectors. No JavaScript runs, so it only
// works when the counters are server-rendered; "auto" mode uses Sufficient
// to decide whether a browser is needed.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/cookiejar"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/roomwatch/roomwatch/internal/reader"
)

const defaultMaxBody = 10 << 20

// Document is a static page. It implements reader.Page.
type Document struct {
	client  *resty.Client
	doc     *goquery.Document
	status  int
	maxBody int64
	logger  *slog.Logger
}

type options struct {
	ua       string
	timeout  time.Duration
	cfBypass bool
	maxBody  int64
	logger   *slog.Logger
}

// Option configures a Document.
type Option func(*options)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.ua = ua }
}

// WithTimeout sets the request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxBody caps the bytes read from a response. Default: 10 MiB.
func WithMaxBody(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// WithCloudflareBypass toggles the Cloudflare-friendly TLS transport. Default: on.
func WithCloudflareBypass(on bool) Option {
	return func(o *options) { o.cfBypass = on }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a Document with a cookie-aware resty client.
func New(opts ...Option) *Document {
	o := options{
		ua:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
		timeout:  30 * time.Second,
		cfBypass: true,
		maxBody:  defaultMaxBody,
		logger:   slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	client := resty.New()
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		client.SetCookieJar(jar)
	}
	if o.cfBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("User-Agent", o.ua)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.5")
	client.SetTimeout(o.timeout)

	return &Document{client: client, maxBody: o.maxBody, logger: o.logger}
}

// Navigate GETs url and parses the body. Non-2xx statuses are errors, and
// so is a body larger than the configured limit.
func (d *Document) Navigate(ctx context.Context, url string) error {
	resp, err := d.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return fmt.Errorf("fetcher: get %s: %w", url, err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	d.status = resp.StatusCode()
	if !resp.IsSuccess() {
		return fmt.Errorf("fetcher: get %s: status %d", url, resp.StatusCode())
	}

	body, err := io.ReadAll(io.LimitReader(raw, d.maxBody+1))
	if err != nil {
		return fmt.Errorf("fetcher: read body: %w", err)
	}
	if int64(len(body)) > d.maxBody {
		return fmt.Errorf("fetcher: body exceeds %d bytes", d.maxBody)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fetcher: parse html: %w", err)
	}
	d.doc = doc

	d.logger.Debug("fetcher: fetched", "url", url, "status", d.status, "size", len(body))
	return nil
}

// WaitForElement reports whether selector matches. A static document never
// changes, so there is nothing to wait for.
func (d *Document) WaitForElement(_ context.Context, selector string, _ time.Duration) bool {
	return d.doc != nil && d.doc.Find(selector).Length() > 0
}

// ReadText returns the text of the first element matching selector.
func (d *Document) ReadText(_ context.Context, selector string) (string, bool) {
	if d.doc == nil {
		return "", false
	}
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// StatusCode is the status of the last Navigate.
func (d *Document) StatusCode() int { return d.status }

// Close is a no-op; present so a Document can stand in for a browser session.
func (d *Document) Close() error { return nil }

// Sufficient reports whether the already-loaded page exposes the root and a
// numeric value for every selector without running JavaScript.
func Sufficient(ctx context.Context, page reader.Page, root string, selectors []string) bool {
	if root != "" && !page.WaitForElement(ctx, root, 0) {
		return false
	}
	for _, sel := range selectors {
		text, ok := page.ReadText(ctx, sel)
		if !ok {
			return false
		}
		if _, ok := reader.ParseCount(text); !ok {
			return false
		}
	}
	return true
}
