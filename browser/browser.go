package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

// Options configure either driver.
type Options struct {
	UserDataDir string
	Headless    bool
	// RemoteURL attaches to an already running Chrome instead of starting
	// one. chromedp wants the ws:// debugger URL, rod accepts either form.
	RemoteURL string
	// Timeout bounds every single DevTools round trip.
	Timeout time.Duration
	Logger  *zap.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Browser drives Chrome through chromedp.
type Browser struct {
	ctx             context.Context
	cancel          context.CancelFunc
	browserCancel   context.CancelFunc
	allocCtx        context.Context
	allocCancel     context.CancelFunc
	keepAlive       context.Context
	keepAliveCancel context.CancelFunc
	attached        bool
	timeout         time.Duration
	logger          *zap.Logger
}

var ignoredCDPNoise = []string{
	"could not unmarshal event",
	"unexpected end of JSON input",
	"unknown IPAddressSpace value",
	"unknown PrivateNetworkRequestPolicy value",
	"parse error",
	"cookiePart",
}

func NewBrowser(opts Options) (*Browser, error) {
	logger := opts.logger()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(1920, 1080),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("no-default-browser-check", true),
			chromedp.Flag("disable-default-apps", true),
			chromedp.Flag("disable-infobars", true),
			chromedp.Flag("disable-popup-blocking", true),
			chromedp.Flag("disable-background-timer-throttling", true),
			chromedp.Flag("disable-renderer-backgrounding", true),
			chromedp.Flag("disable-features", "VizDisplayCompositor,TranslateUI"),
		)
		if opts.UserDataDir != "" {
			execOpts = append(execOpts,
				chromedp.UserDataDir(opts.UserDataDir),
				chromedp.Flag("profile-directory", "Default"),
			)
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	logf := chromedp.WithLogf(func(format string, v ...interface{}) {
		msg := fmt.Sprintf(format, v...)
		for _, pattern := range ignoredCDPNoise {
			if strings.Contains(msg, pattern) {
				return
			}
		}
		logger.Debug(msg, zap.String("driver", "chromedp"))
	})

	// browserCtx holds the connection only; listing targets on it does not
	// open a tab.
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, logf)

	tabOpts := []chromedp.ContextOption{logf}
	attached := false
	if opts.RemoteURL != "" {
		infos, err := chromedp.Targets(browserCtx)
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("list targets at %s: %w", opts.RemoteURL, err)
		}
		if id := firstPageTarget(infos); id != "" {
			tabOpts = append(tabOpts, chromedp.WithTargetID(id))
			attached = true
			logger.Debug("attaching to open tab", zap.String("target", string(id)))
		} else {
			logger.Debug("no open tab, creating one")
		}
	}
	ctx, cancel := chromedp.NewContext(browserCtx, tabOpts...)

	keepAliveCtx, keepAliveCancel := context.WithCancel(context.Background())

	b := &Browser{
		ctx:             ctx,
		cancel:          cancel,
		browserCancel:   browserCancel,
		allocCtx:        allocCtx,
		allocCancel:     allocCancel,
		keepAlive:       keepAliveCtx,
		keepAliveCancel: keepAliveCancel,
		attached:        attached,
		timeout:         opts.timeout(),
		logger:          logger,
	}

	// The first Run starts the browser or attaches to the target.
	if err := chromedp.Run(ctx); err != nil {
		keepAliveCancel()
		cancel()
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	go b.keepAliveLoop()

	return b, nil
}

// firstPageTarget picks the first ordinary page, skipping extension and
// devtools pages.
func firstPageTarget(infos []*target.Info) target.ID {
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if strings.HasPrefix(info.URL, "devtools://") || strings.HasPrefix(info.URL, "chrome-extension://") {
			continue
		}
		return info.TargetID
	}
	return ""
}

func (b *Browser) alive() error {
	select {
	case <-b.ctx.Done():
		return errors.New("browser context was canceled")
	default:
		return nil
	}
}

// callCtx derives a chromedp context bounded by the per-call timeout that
// is also canceled when parent is.
func (b *Browser) callCtx(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.alive(); err != nil {
		return err
	}

	ctx, cancel := b.callCtx(ctx, 4*b.timeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Eval calls the JavaScript function fn with args and decodes its result
// into out, which may be nil.
func (b *Browser) Eval(ctx context.Context, fn string, out any, args ...any) error {
	if err := b.alive(); err != nil {
		return err
	}

	expr, err := callExpr(fn, args...)
	if err != nil {
		return err
	}

	ctx, cancel := b.callCtx(ctx, b.timeout)
	defer cancel()

	return chromedp.Run(ctx, chromedp.Evaluate(expr, out))
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := b.Eval(ctx, currentURLJS, &url); err != nil {
		return "", fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

func (b *Browser) Screenshot(ctx context.Context, filename string) error {
	if err := b.alive(); err != nil {
		return err
	}

	ctx, cancel := b.callCtx(ctx, b.timeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}

	return os.WriteFile(filename, buf, 0644)
}

// keepAliveLoop pings the page while the operator is busy in the window,
// so an idle remote target is not dropped before the run starts.
func (b *Browser) keepAliveLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.keepAlive.Done():
			return
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
			var url string
			err := chromedp.Run(ctx, chromedp.Evaluate(pingExpr, &url))
			cancel()

			if errors.Is(err, context.Canceled) {
				return
			}
			if err != nil {
				b.logger.Debug("keep-alive ping failed", zap.Error(err))
			}
		}
	}
}

// Close stops the browser, or only detaches when attached to a remote one.
// Canceling a context bound to an existing tab makes chromedp close that
// tab, so an attached session is left to drop with the process.
func (b *Browser) Close() error {
	b.keepAliveCancel()
	if b.attached {
		return nil
	}
	b.cancel()
	b.browserCancel()
	b.allocCancel()
	return nil
}
