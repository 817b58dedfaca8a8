package roomwatch

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/roomwatch/roomwatch/internal/browser"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/fetcher"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/reader"
)

// Page is a loaded document the reader can sample. Close releases whatever
// backs it (Chrome, Xvfb, connections).
type Page interface {
	reader.Page
	Close() error
}

// PageOpener provides a fresh Page for one run.
type PageOpener func(ctx context.Context) (Page, error)

// Browser modes.
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
	ModeAuto    = "auto"
)

func browserConfig(cfg BrowserConfig, logger *slog.Logger) browser.Config {
	return browser.Config{
		RemoteURL:        cfg.Remote,
		Bin:              cfg.Bin,
		Mode:             browser.ParseMode(cfg.Display),
		NoSandbox:        cfg.NoSandbox,
		ResourceBlocking: cfg.ResourceBlocking,
		XvfbDisplay:      cfg.XvfbDisplay,
		Logger:           logger,
	}
}

// BrowserOpener launches (or connects to) Chrome for every run.
func BrowserOpener(cfg BrowserConfig, logger *slog.Logger) PageOpener {
	if logger == nil {
		logger = slog.Default()
	}
	bc := browserConfig(cfg, logger)
	return func(ctx context.Context) (Page, error) {
		s, err := browser.Open(ctx, bc)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func fetcherOptions(cfg BrowserConfig, logger *slog.Logger) []fetcher.Option {
	opts := []fetcher.Option{
		fetcher.WithCloudflareBypass(cfg.CloudflareBypass),
		fetcher.WithLogger(logger),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, fetcher.WithUserAgent(cfg.UserAgent))
	}
	return opts
}

// HTTPOpener reads the page with a plain HTTP fetch, without JavaScript.
func HTTPOpener(cfg BrowserConfig, logger *slog.Logger) PageOpener {
	if logger == nil {
		logger = slog.Default()
	}
	opts := fetcherOptions(cfg, logger)
	return func(context.Context) (Page, error) {
		return fetcher.New(opts...), nil
	}
}

// AutoOpener tries a static fetch of target first and falls back to Chrome
// when the static document does not carry every counter.
func AutoOpener(cfg BrowserConfig, target reader.Target, logger *slog.Logger) PageOpener {
	if logger == nil {
		logger = slog.Default()
	}
	opts := fetcherOptions(cfg, logger)
	viaBrowser := BrowserOpener(cfg, logger)
	return func(ctx context.Context) (Page, error) {
		doc := fetcher.New(opts...)
		err := doc.Navigate(ctx, target.URL)
		if err == nil && fetcher.Sufficient(ctx, doc, target.Root, target.Selectors) {
			logger.Info("roomwatch: static page is sufficient", "url", target.URL)
			return &preloaded{Page: doc, url: target.URL}, nil
		}
		logger.Info("roomwatch: escalating to browser",
			"url", target.URL, "status", doc.StatusCode(), "error", err)
		doc.Close()
		return viaBrowser(ctx)
	}
}

// preloaded skips the first navigation to the URL it already holds.
type preloaded struct {
	Page
	url  string
	used bool
}

func (p *preloaded) Navigate(ctx context.Context, url string) error {
	if !p.used && url == p.url {
		p.used = true
		return nil
	}
	p.used = true
	return p.Page.Navigate(ctx, url)
}

// OpenerFor picks the opener matching cfg.Browser.Mode.
func OpenerFor(cfg *Config, logger *slog.Logger) PageOpener {
	switch cfg.Browser.Mode {
	case ModeHTTP:
		return HTTPOpener(cfg.Browser, logger)
	case ModeAuto:
		return AutoOpener(cfg.Browser, targetOf(cfg), logger)
	default:
		return BrowserOpener(cfg.Browser, logger)
	}
}

func targetOf(cfg *Config) reader.Target {
	return reader.Target{
		URL:       cfg.Target.URL,
		Root:      cfg.Target.Root,
		Selectors: cfg.Target.Selectors,
	}
}
