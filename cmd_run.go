package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Angabebr/elc-autofill/ai"
	"github.com/Angabebr/elc-autofill/autofill"
	"github.com/Angabebr/elc-autofill/browser"
	"github.com/Angabebr/elc-autofill/config"
)

type runFlags struct {
	url         string
	driver      string
	remoteURL   string
	entriesFile string
	headless    bool
	wait        bool
	keepOpen    bool
	timeout     time.Duration
	screenshot  string
}

// page is what the run command needs from either driver.
type page interface {
	browser.Evaluator
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

func newRunCmd(root *rootOptions) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fill the form once in a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return runFill(cmd.Context(), cmd, cfg, root.verbose, f.screenshot)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "Page to open before filling")
	fl.StringVar(&f.driver, "driver", config.DriverChromedp, "Browser driver: chromedp or rod")
	fl.StringVar(&f.remoteURL, "remote-url", "", "Attach to a running Chrome at this DevTools URL")
	fl.StringVarP(&f.entriesFile, "entries-file", "f", "", "Read entries from this file instead of the config")
	fl.BoolVar(&f.headless, "headless", false, "Run Chrome without a window")
	fl.BoolVar(&f.wait, "wait", false, "Wait for Enter before filling, e.g. to log in first")
	fl.BoolVar(&f.keepOpen, "keep-open", false, "Leave the browser running after the run")
	fl.DurationVar(&f.timeout, "timeout", browser.DefaultTimeout, "Timeout for each browser call")
	fl.StringVar(&f.screenshot, "screenshot", "", "Save a screenshot here after the run (chromedp only)")
	return cmd
}

// apply copies flags the user set over the loaded config.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("url") {
		cfg.URL = f.url
	}
	if fl.Changed("driver") {
		cfg.Driver = f.driver
	}
	if fl.Changed("remote-url") {
		cfg.RemoteURL = f.remoteURL
	}
	if fl.Changed("entries-file") {
		cfg.EntriesFile = f.entriesFile
	}
	if fl.Changed("headless") {
		cfg.Headless = f.headless
	}
	if fl.Changed("wait") {
		cfg.Wait = f.wait
	}
	if fl.Changed("keep-open") {
		cfg.KeepBrowserOpen = f.keepOpen
	}
	if fl.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
}

func runFill(ctx context.Context, cmd *cobra.Command, cfg *config.Config, verbose bool, screenshot string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	list, err := cfg.LoadEntries()
	if err != nil {
		return err
	}
	if err := cfg.ResolveUserDataDir(); err != nil {
		return err
	}

	base, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer base.Sync() //nolint:errcheck
	logger := base.With(zap.String("run", uuid.NewString()))

	logger.Info("starting browser",
		zap.String("driver", cfg.Driver),
		zap.Bool("headless", cfg.Headless),
		zap.String("remote_url", cfg.RemoteURL),
		zap.String("user_data_dir", cfg.UserDataDir))

	p, err := openPage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.KeepBrowserOpen {
		logger.Info("browser will stay open after the run")
	} else {
		defer p.Close()
	}

	if cfg.URL != "" {
		if err := p.Navigate(ctx, cfg.URL); err != nil {
			return err
		}
		logger.Info("page loaded", zap.String("url", cfg.URL))
	}

	if cfg.Wait {
		fmt.Fprintln(cmd.OutOrStdout(), "Open the form in the browser window, then press Enter to fill it.")
		if err := waitForEnter(ctx, cmd.InOrStdin()); err != nil {
			return err
		}
	}

	if url, err := p.CurrentURL(ctx); err == nil {
		logger.Info("filling form", zap.String("url", url), zap.Int("entries", len(list)))
	}

	opts := []autofill.Option{
		autofill.WithClickPrefix(cfg.ClickPrefix),
		autofill.WithSelectPrefix(cfg.SelectPrefix),
	}
	if cfg.OpenAI.APIKey != "" {
		opts = append(opts, autofill.WithAdvisor(ai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)))
	}

	report, err := autofill.New(browser.NewDocument(p), logger, opts...).Run(ctx, list)
	if err != nil {
		return err
	}

	if screenshot != "" {
		if b, ok := p.(*browser.Browser); ok {
			if err := b.Screenshot(ctx, screenshot); err != nil {
				logger.Warn("screenshot failed", zap.Error(err))
			}
		} else {
			logger.Warn("screenshots need the chromedp driver", zap.String("driver", cfg.Driver))
		}
	}

	printSummary(cmd.OutOrStdout(), report)
	return nil
}

func openPage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (page, error) {
	opts := browser.Options{
		UserDataDir: cfg.UserDataDir,
		Headless:    cfg.Headless,
		RemoteURL:   cfg.RemoteURL,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	}
	if cfg.Driver == config.DriverRod {
		r, err := browser.NewRodBrowser(ctx, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	b, err := browser.NewBrowser(opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func waitForEnter(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func printSummary(w io.Writer, r *autofill.Report) {
	fmt.Fprintf(w, "\n%d/%d entries filled, %d warnings\n", r.Succeeded(), len(r.Outcomes), r.Warnings())
	for _, o := range r.Outcomes {
		switch {
		case o.OK():
			fmt.Fprintf(w, "  ok    %s -> %s\n", o.Entry, o.SelectedValue)
		default:
			if o.ClickErr != nil {
				fmt.Fprintf(w, "  warn  %s: %v\n", o.Entry, o.ClickErr)
			}
			if o.SelectErr != nil {
				fmt.Fprintf(w, "  warn  %s: %v\n", o.Entry, o.SelectErr)
			}
		}
	}
}
