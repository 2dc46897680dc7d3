package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// locateScript resolves a Locator inside the page. It returns the first
// matching element (or null, which makes rod retry) unless all is set, in
// which case it returns every match. Role detection covers the implicit roles
// of the native controls the clinic UI renders; names come from
// aria-labelledby, aria-label, associated labels, then text content.
const locateScript = `(role, name, label, exact, visibleOnly, all) => {
	const squash = s => (s || '').replace(/\s+/g, ' ').trim();
	const norm = s => squash(s).toLowerCase();
	const matches = (text, want) => exact
		? squash(text) === squash(want)
		: !norm(want) || norm(text).includes(norm(want));
	const implicitRole = el => {
		const tag = el.tagName.toLowerCase();
		if (tag === 'button') return 'button';
		if (tag === 'a' && el.hasAttribute('href')) return 'link';
		if (tag === 'select') return el.multiple ? 'listbox' : 'combobox';
		if (tag === 'textarea') return 'textbox';
		if (tag === 'input') {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			if (['button', 'submit', 'reset', 'image'].includes(t)) return 'button';
			if (t === 'checkbox' || t === 'radio') return t;
			if (t === 'hidden') return '';
			return 'textbox';
		}
		return '';
	};
	const roleOf = el => (el.getAttribute('role') || implicitRole(el)).split(' ')[0];
	const textOfIds = ids => ids.split(/\s+/)
		.map(id => document.getElementById(id))
		.filter(Boolean)
		.map(n => n.textContent)
		.join(' ');
	const labelOf = el => {
		if (el.hasAttribute('aria-labelledby')) return textOfIds(el.getAttribute('aria-labelledby'));
		if (el.hasAttribute('aria-label')) return el.getAttribute('aria-label');
		if (el.labels && el.labels.length) return Array.from(el.labels).map(l => l.textContent).join(' ');
		return '';
	};
	const nameOf = el => {
		const l = labelOf(el);
		if (l) return l;
		if (el.tagName === 'INPUT') return el.value || el.getAttribute('title') || '';
		return el.textContent || el.getAttribute('title') || '';
	};
	const visible = el => {
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	let found = Array.from(document.querySelectorAll('*')).filter(el => {
		if (role) return roleOf(el) === role && matches(nameOf(el), name);
		if (label) { const l = labelOf(el); return l !== '' && matches(l, label); }
		return false;
	});
	if (visibleOnly) found = found.filter(visible);
	if (all) return found;
	return found.length ? found[0] : null;
}`

// visitScript routes a single page app the way a link would: push the history
// entry, then tell the router.
const visitScript = `(url) => {
	history.pushState(null, '', url);
	window.dispatchEvent(new PopStateEvent('popstate', { state: null }));
}`

// RodDriver drives one rod page. Actions pick the first visible match.
type RodDriver struct {
	page          *rod.Page
	actionTimeout time.Duration
}

// NewRodDriver wraps an already created page.
func NewRodDriver(page *rod.Page, actionTimeout time.Duration) *RodDriver {
	return &RodDriver{page: page, actionTimeout: actionTimeout}
}

// Goto navigates and waits for the load event.
func (d *RodDriver) Goto(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx, d.actionTimeout)
	defer cancel()

	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

// Visit routes inside the loaded app. url must share the page's origin.
func (d *RodDriver) Visit(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx, d.actionTimeout)
	defer cancel()

	if _, err := d.page.Context(ctx).Eval(visitScript, url); err != nil {
		return fmt.Errorf("failed to visit %s: %w", url, err)
	}
	return nil
}

// URL returns location.href, which follows client-side route changes.
func (d *RodDriver) URL(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("failed to read page url: %w", err)
	}
	return res.Value.Str(), nil
}

// Fill replaces the value of the matching control.
func (d *RodDriver) Fill(ctx context.Context, loc Locator, value string) error {
	ctx, cancel := withTimeout(ctx, d.actionTimeout)
	defer cancel()

	el, err := d.waitFor(ctx, loc)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", loc, err)
	}
	el = el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", loc, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", loc, err)
	}
	return nil
}

// Click clicks the matching element with the left mouse button.
func (d *RodDriver) Click(ctx context.Context, loc Locator) error {
	ctx, cancel := withTimeout(ctx, d.actionTimeout)
	defer cancel()

	el, err := d.waitFor(ctx, loc)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

// Visible reports whether any match is visible right now.
func (d *RodDriver) Visible(ctx context.Context, loc Locator) (bool, error) {
	els, err := d.page.Context(ctx).ElementsByJS(rod.Eval(locateScript, loc.Role, loc.Name, loc.Label, loc.Exact, true, true))
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	return len(els) > 0, nil
}

// Screenshot captures the current viewport as PNG.
func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return png, nil
}

// Close closes the page.
func (d *RodDriver) Close() error {
	return d.page.Close()
}

// waitFor relies on ElementByJS retrying while the script returns null.
func (d *RodDriver) waitFor(ctx context.Context, loc Locator) (*rod.Element, error) {
	return d.page.Context(ctx).ElementByJS(rod.Eval(locateScript, loc.Role, loc.Name, loc.Label, loc.Exact, true, false))
}
