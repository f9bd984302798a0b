// Package autofill clicks each entry's cell and then picks the matching
// option in the entry's select control.
package autofill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Angabebr/elc-autofill/dom"
	"github.com/Angabebr/elc-autofill/entries"
)

// DefaultAdvisorTimeout bounds one advisor call.
const DefaultAdvisorTimeout = 20 * time.Second

var (
	ErrClickTargetMissing  = errors.New("click target missing")
	ErrSelectTargetMissing = errors.New("select target missing")
	ErrOptionNotMatched    = errors.New("no option matched")
)

// Advisor proposes the closest available label when none matches exactly.
// Its answer is only reported, never selected.
type Advisor interface {
	SuggestLabel(ctx context.Context, expected string, labels []string) (string, error)
}

type Filler struct {
	resolver       dom.Resolver
	logger         *zap.Logger
	advisor        Advisor
	advisorTimeout time.Duration
	clickPrefix    string
	selectPrefix   string
}

type Option func(*Filler)

func WithClickPrefix(p string) Option {
	return func(f *Filler) { f.clickPrefix = p }
}

func WithSelectPrefix(p string) Option {
	return func(f *Filler) { f.selectPrefix = p }
}

func WithAdvisor(a Advisor) Option {
	return func(f *Filler) { f.advisor = a }
}

func WithAdvisorTimeout(d time.Duration) Option {
	return func(f *Filler) { f.advisorTimeout = d }
}

func New(resolver dom.Resolver, logger *zap.Logger, opts ...Option) *Filler {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filler{
		resolver:       resolver,
		logger:         logger,
		advisorTimeout: DefaultAdvisorTimeout,
		clickPrefix:    entries.DefaultClickPrefix,
		selectPrefix:   entries.DefaultSelectPrefix,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run processes list in order. The click step of an entry always runs
// before its select lookup, since the click may reveal or rebuild the
// control. Missing elements and unmatched options are logged and recorded
// in the report; the only error returned is ctx's.
func (f *Filler) Run(ctx context.Context, list []entries.Entry) (*Report, error) {
	report := &Report{Outcomes: make([]Outcome, 0, len(list))}

	for _, e := range list {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		out := Outcome{Entry: e}
		f.click(ctx, e, &out)
		f.selectOption(ctx, e, &out)
		report.Outcomes = append(report.Outcomes, out)
	}

	f.logger.Info("run finished",
		zap.Int("entries", len(list)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("warnings", report.Warnings()))

	return report, nil
}

func (f *Filler) click(ctx context.Context, e entries.Entry, out *Outcome) {
	key := e.ClickKey(f.clickPrefix)
	log := f.logger.With(zap.String("key", key))

	el, err := f.resolver.Clickable(ctx, key)
	switch {
	case errors.Is(err, dom.ErrNotFound):
		out.ClickErr = fmt.Errorf("%w: %s: %w", ErrClickTargetMissing, key, err)
		log.Warn("click target not found", zap.Error(err))
		return
	case err != nil:
		out.ClickErr = fmt.Errorf("look up %s: %w", key, err)
		log.Warn("lookup failed", zap.Error(err))
		return
	}

	if err := el.Click(ctx); err != nil {
		out.ClickErr = fmt.Errorf("click %s: %w", key, err)
		log.Warn("click failed", zap.Error(err))
		return
	}

	out.Clicked = true
	log.Info("clicked")
}

func (f *Filler) selectOption(ctx context.Context, e entries.Entry, out *Outcome) {
	key := e.SelectKey(f.selectPrefix)
	log := f.logger.With(zap.String("key", key), zap.String("label", e.Label))

	ctl, err := f.resolver.Selectable(ctx, key)
	switch {
	case errors.Is(err, dom.ErrNotFound), errors.Is(err, dom.ErrNotSelectable):
		out.SelectErr = fmt.Errorf("%w: %s: %w", ErrSelectTargetMissing, key, err)
		log.Warn("select target not found", zap.Error(err))
		return
	case err != nil:
		out.SelectErr = fmt.Errorf("look up %s: %w", key, err)
		log.Warn("lookup failed", zap.Error(err))
		return
	}

	opts, err := ctl.Options(ctx)
	if err != nil {
		out.SelectErr = fmt.Errorf("read options of %s: %w", key, err)
		log.Warn("reading options failed", zap.Error(err))
		return
	}

	match, ok := findOption(opts, e.Label)
	if !ok {
		out.SelectErr = fmt.Errorf("%w: %s has no option %q", ErrOptionNotMatched, key, e.Label)
		log.Warn("no matching option", f.suggestion(ctx, e.Label, opts)...)
		return
	}

	if err := ctl.Select(ctx, match.Value); err != nil {
		out.SelectErr = fmt.Errorf("select %q in %s: %w", match.Value, key, err)
		log.Warn("setting selection failed", zap.Error(err))
		return
	}

	out.Selected = true
	out.SelectedValue = match.Value
	log.Info("selected", zap.String("value", match.Value))
}

// findOption returns the first option whose trimmed label equals the
// trimmed expected label exactly.
func findOption(opts []dom.Option, label string) (dom.Option, bool) {
	want := strings.TrimSpace(label)
	for _, o := range opts {
		if strings.TrimSpace(o.Label) == want {
			return o, true
		}
	}
	return dom.Option{}, false
}

func (f *Filler) suggestion(ctx context.Context, label string, opts []dom.Option) []zap.Field {
	if f.advisor == nil || len(opts) == 0 {
		return nil
	}

	labels := make([]string, 0, len(opts))
	for _, o := range opts {
		labels = append(labels, strings.TrimSpace(o.Label))
	}

	ctx, cancel := context.WithTimeout(ctx, f.advisorTimeout)
	defer cancel()

	hint, err := f.advisor.SuggestLabel(ctx, strings.TrimSpace(label), labels)
	if err != nil {
		f.logger.Debug("advisor failed", zap.Error(err))
		return nil
	}
	if hint == "" {
		return nil
	}
	return []zap.Field{zap.String("closest", hint)}
}
