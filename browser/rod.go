package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodBrowser drives Chrome through go-rod. It works on a single page.
type RodBrowser struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	remote   bool

	// tempProfile is set when rod picked a throwaway user data dir that
	// may be removed on Close.
	tempProfile bool
	timeout     time.Duration
	logger      *zap.Logger
}

func NewRodBrowser(ctx context.Context, opts Options) (*RodBrowser, error) {
	r := &RodBrowser{timeout: opts.timeout(), logger: opts.logger()}

	controlURL := opts.RemoteURL
	if controlURL != "" {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve debugger url: %w", err)
		}
		controlURL = u
		r.remote = true
	} else {
		l := launcher.New().Headless(opts.Headless)
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		r.launcher = l
		r.tempProfile = opts.UserDataDir == ""
		controlURL = u
	}

	// r.browser stays nil until connected; closing an unconnected
	// rod.Browser panics.
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		r.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = b

	page, err := r.firstPage()
	if err != nil {
		r.Close()
		return nil, err
	}
	r.page = page

	r.logger.Debug("rod connected", zap.String("control_url", controlURL), zap.Bool("remote", r.remote))
	return r, nil
}

// firstPage reuses an open tab so an attached session keeps the page the
// operator already has open.
func (r *RodBrowser) firstPage() (*rod.Page, error) {
	pages, err := r.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages.First(), nil
	}
	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

func (r *RodBrowser) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx).Timeout(4 * r.timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s: %w", url, err)
	}
	return nil
}

func (r *RodBrowser) Eval(ctx context.Context, fn string, out any, args ...any) error {
	p := r.page.Context(ctx).Timeout(r.timeout)
	defer p.CancelTimeout()

	res, err := p.Eval(fn, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (r *RodBrowser) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := r.Eval(ctx, currentURLJS, &url); err != nil {
		return "", fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

// Close leaves an attached browser running. A configured user data dir
// is never removed: it holds the operator's login session.
func (r *RodBrowser) Close() error {
	if r.browser != nil && !r.remote {
		_ = r.browser.Close()
	}
	if r.launcher == nil {
		return nil
	}
	if r.tempProfile {
		r.launcher.Cleanup()
	} else {
		r.launcher.Kill()
	}
	return nil
}
