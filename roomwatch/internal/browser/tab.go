package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultNavigateTimeout bounds a page load.
const DefaultNavigateTimeout = 30 * time.Second

// Tab wraps a Rod page and implements reader.Page.
type Tab struct {
	Page            *rod.Page
	NavigateTimeout time.Duration

	router  *rod.HijackRouter
	manager *Manager
}

// OpenTab creates a blank tab on the manager's browser with stealth and
// resource blocking applied. The caller navigates.
func OpenTab(mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		// Fall back to a plain page; stealth only hides automation hints.
		mgr.cfg.Logger.Warn("browser: stealth page failed, using plain tab", "error", err)
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
		if err != nil {
			return nil, fmt.Errorf("browser: create tab: %w", err)
		}
	}

	t := &Tab{Page: page, NavigateTimeout: DefaultNavigateTimeout, manager: mgr}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}
	return t, nil
}

// Navigate loads url and waits for the load event. A load-event timeout is
// only logged; the reader's element waits decide whether the page is usable.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.NavigateTimeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.manager.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// WaitForElement polls for selector until it exists or timeout elapses.
func (t *Tab) WaitForElement(ctx context.Context, selector string, timeout time.Duration) bool {
	_, err := t.Page.Context(ctx).Timeout(timeout).Element(selector)
	return err == nil
}

// ReadText returns the element's current text without waiting.
func (t *Tab) ReadText(ctx context.Context, selector string) (string, bool) {
	has, el, err := t.Page.Context(ctx).Has(selector)
	if err != nil || !has {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		return "", false
	}
	return text, true
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// Session is a Manager plus its single Tab. Closing it releases Chrome.
type Session struct {
	*Tab
	mgr *Manager
}

// Open launches Chrome according to cfg and opens one tab.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	mgr := NewManager(cfg)
	if _, err := mgr.Start(ctx); err != nil {
		mgr.Close()
		return nil, err
	}
	tab, err := OpenTab(mgr)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return &Session{Tab: tab, mgr: mgr}, nil
}

// Close closes the tab and shuts down the browser.
func (s *Session) Close() error {
	tabErr := s.Tab.Close()
	if err := s.mgr.Close(); err != nil {
		return err
	}
	return tabErr
}
