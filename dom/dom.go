// Package dom describes the parts of a host document the filler touches:
// a keyed lookup, clickable elements and select-style controls.
package dom

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("element not found")
	ErrNotSelectable = errors.New("element has no options")
)

// Resolver maps an element key to at most one element.
type Resolver interface {
	Clickable(ctx context.Context, key string) (Clickable, error)
	Selectable(ctx context.Context, key string) (Selectable, error)
}

// Clickable runs the element's native click, so listeners on the element
// and its ancestors fire as they would for a user.
type Clickable interface {
	Click(ctx context.Context) error
}

type Selectable interface {
	// Options returns the control's options in document order.
	Options(ctx context.Context) ([]Option, error)
	// Select sets the current value and then emits a single bubbling
	// change notification.
	Select(ctx context.Context, value string) error
}

type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
