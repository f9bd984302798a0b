package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Page-side helpers. Each is a function expression; arguments are passed
// JSON-encoded so ids and labels never need escaping.
const (
	currentURLJS = `() => window.location.href`

	// lookupJS reports "none", "element" or "select" for an id.
	lookupJS = `(id) => {
	const el = document.getElementById(id);
	if (!el) return "none";
	return el.options ? "select" : "element";
}`

	clickJS = `(id) => {
	const el = document.getElementById(id);
	if (!el) return false;
	el.click();
	return true;
}`

	optionsJS = `(id) => {
	const el = document.getElementById(id);
	if (!el) return {found: false, select: false, options: []};
	if (!el.options) return {found: true, select: false, options: []};
	return {
		found: true,
		select: true,
		options: Array.from(el.options).map(o => ({label: o.text, value: o.value})),
	};
}`

	selectJS = `(id, value) => {
	const el = document.getElementById(id);
	if (!el || !el.options) return false;
	el.value = value;
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`
)

const pingExpr = "(" + currentURLJS + ")()"

// callExpr renders fn applied to args as a single expression.
func callExpr(fn string, args ...any) (string, error) {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument: %w", err)
		}
		encoded = append(encoded, string(raw))
	}
	return "(" + fn + ")(" + strings.Join(encoded, ", ") + ")", nil
}
