// Package browser resolves form elements in a live Chrome page, driven by
// either chromedp or go-rod.
package browser

import (
	"context"
	"fmt"

	"github.com/Angabebr/elc-autofill/dom"
)

// Evaluator runs a page-side function expression and decodes its JSON
// result into out.
type Evaluator interface {
	Eval(ctx context.Context, fn string, out any, args ...any) error
}

// Document is a dom.Resolver over document.getElementById in the page
// behind ev.
type Document struct {
	ev Evaluator
}

func NewDocument(ev Evaluator) *Document {
	return &Document{ev: ev}
}

func (d *Document) kind(ctx context.Context, key string) (string, error) {
	var kind string
	if err := d.ev.Eval(ctx, lookupJS, &kind, key); err != nil {
		return "", fmt.Errorf("look up %s: %w", key, err)
	}
	return kind, nil
}

func (d *Document) Clickable(ctx context.Context, key string) (dom.Clickable, error) {
	kind, err := d.kind(ctx, key)
	if err != nil {
		return nil, err
	}
	if kind == "none" {
		return nil, fmt.Errorf("%s: %w", key, dom.ErrNotFound)
	}
	return &element{doc: d, key: key}, nil
}

func (d *Document) Selectable(ctx context.Context, key string) (dom.Selectable, error) {
	kind, err := d.kind(ctx, key)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "none":
		return nil, fmt.Errorf("%s: %w", key, dom.ErrNotFound)
	case "select":
		return &element{doc: d, key: key}, nil
	default:
		return nil, fmt.Errorf("%s: %w", key, dom.ErrNotSelectable)
	}
}

// element is looked up again on every call; the page may have replaced it
// since the resolver saw it.
type element struct {
	doc *Document
	key string
}

func (e *element) Click(ctx context.Context) error {
	var ok bool
	if err := e.doc.ev.Eval(ctx, clickJS, &ok, e.key); err != nil {
		return fmt.Errorf("click %s: %w", e.key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", e.key, dom.ErrNotFound)
	}
	return nil
}

type optionsResult struct {
	Found   bool         `json:"found"`
	Select  bool         `json:"select"`
	Options []dom.Option `json:"options"`
}

func (e *element) Options(ctx context.Context) ([]dom.Option, error) {
	var res optionsResult
	if err := e.doc.ev.Eval(ctx, optionsJS, &res, e.key); err != nil {
		return nil, fmt.Errorf("read options of %s: %w", e.key, err)
	}
	switch {
	case !res.Found:
		return nil, fmt.Errorf("%s: %w", e.key, dom.ErrNotFound)
	case !res.Select:
		return nil, fmt.Errorf("%s: %w", e.key, dom.ErrNotSelectable)
	}
	return res.Options, nil
}

func (e *element) Select(ctx context.Context, value string) error {
	var ok bool
	if err := e.doc.ev.Eval(ctx, selectJS, &ok, e.key, value); err != nil {
		return fmt.Errorf("select in %s: %w", e.key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", e.key, dom.ErrNotFound)
	}
	return nil
}
