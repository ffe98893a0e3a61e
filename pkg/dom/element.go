package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"chatpilot/pkg/utils"
)

// Element is a handle on a single element node of the page. Handles survive
// ordinary mutations but go inert when the document is replaced; callers
// must treat a detached handle as "not yet available" and re-resolve.
type Element struct {
	page *Page
	node *html.Node
	gen  uint64
}

// Detached reports whether the handle's document has been replaced.
func (e *Element) Detached() bool {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.detachedLocked()
}

func (e *Element) detachedLocked() bool {
	return e.gen != e.page.gen
}

// Text returns the concatenated text content of the element's subtree,
// whitespace-trimmed.
func (e *Element) Text() string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return ""
	}
	var b strings.Builder
	appendText(e.node, &b)
	return strings.TrimSpace(b.String())
}

// Query returns descendant elements matching the CSS selector.
func (e *Element) Query(selector string) ([]*Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid selector %q: %w", utils.ErrParsing, selector, err)
	}

	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return nil, nil
	}
	nodes := sel.MatchAll(e.node)
	els := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if n == e.node {
			continue
		}
		els = append(els, &Element{page: e.page, node: n, gen: e.gen})
	}
	return els, nil
}

// QueryFirst returns the first matching descendant, or nil.
func (e *Element) QueryFirst(selector string) (*Element, error) {
	els, err := e.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

// Matches reports whether the element itself matches the selector.
// Invalid selectors match nothing.
func (e *Element) Matches(selector string) bool {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return false
	}
	return sel.Match(e.node)
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return "", false
	}
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Tag returns the element's tag name.
func (e *Element) Tag() string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.node.Data
}

// SetValue sets the element's value through the native property, not the
// attribute. Host-page frameworks that intercept attribute writes never see
// this, which is exactly the point: the subsequent input event is what makes
// the framework notice the change.
func (e *Element) SetValue(v string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return
	}
	e.page.values[e.node] = v
}

// Value returns the element's current native value.
func (e *Element) Value() string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return ""
	}
	return e.page.values[e.node]
}

// DispatchInput dispatches a synthetic input event carrying the current value.
func (e *Element) DispatchInput() {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return
	}
	e.page.recordEvent(Event{
		Kind:   EventInput,
		Target: describeNode(e.node),
		Value:  e.page.values[e.node],
	})
}

// Click dispatches a synthetic click event on the element.
func (e *Element) Click() {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return
	}
	e.page.recordEvent(Event{Kind: EventClick, Target: describeNode(e.node)})
}

// DispatchKeySequence dispatches the keydown/keypress/keyup triple for key.
func (e *Element) DispatchKeySequence(key string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() {
		return
	}
	target := describeNode(e.node)
	e.page.recordEvent(Event{Kind: EventKeyDown, Target: target, Key: key})
	e.page.recordEvent(Event{Kind: EventKeyPress, Target: target, Key: key})
	e.page.recordEvent(Event{Kind: EventKeyUp, Target: target, Key: key})
}

// Contains reports whether other sits inside e's subtree (or is e itself).
func (e *Element) Contains(other *Element) bool {
	if other == nil || e.page != other.page {
		return false
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detachedLocked() || other.gen != e.gen {
		return false
	}
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

func appendText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(c, b)
	}
}

// describeNode builds a compact "tag#id.class" descriptor for event targets.
func describeNode(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			b.WriteByte('#')
			b.WriteString(a.Val)
		case "class":
			for _, c := range strings.Fields(a.Val) {
				b.WriteByte('.')
				b.WriteString(c)
			}
		}
	}
	return b.String()
}
