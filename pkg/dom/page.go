package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"chatpilot/pkg/utils"
)

// Mutation describes one batch of structural changes observed on the page.
type Mutation struct {
	Added            []*Element // Element nodes inserted since the last batch
	DocumentReplaced bool       // True when the whole document was swapped (navigation)
}

// Page models the host page's DOM as seen by the engine: a parsed HTML
// document fed by external snapshot/fragment updates. Reads go through CSS
// selector queries; the only write channel is simulated user input, recorded
// in an event journal. The page is treated as external, mutable and
// untrusted - reads tolerate missing elements, queries tolerate bad selectors.
type Page struct {
	mu     sync.Mutex
	doc    *goquery.Document
	gen    uint64                 // Bumped on document replacement; stale handles go inert
	values map[*html.Node]string  // Native value property per node (distinct from the value attribute)
	events []Event
	subs   map[int]*subscriber
	nextID int
	log    *logrus.Entry
}

type subscriber struct {
	ch      chan Mutation
	dropped int
}

// NewPage parses html into a Page.
func NewPage(htmlSrc string, log *logrus.Entry) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing page HTML: %w", utils.ErrParsing, err)
	}
	return &Page{
		doc:    doc,
		values: make(map[*html.Node]string),
		subs:   make(map[int]*subscriber),
		log:    log,
	}, nil
}

// Query returns all elements matching the CSS selector. A selector that
// fails to parse yields an error the caller is expected to log and skip;
// it is never fatal.
func (p *Page) Query(selector string) ([]*Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid selector %q: %w", utils.ErrParsing, selector, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrapAll(p.doc.FindMatcher(sel)), nil
}

// QueryFirst returns the first element matching the selector, or nil.
func (p *Page) QueryFirst(selector string) (*Element, error) {
	els, err := p.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

// AppendHTML parses fragment and appends its nodes as children of the first
// element matching parentSelector, then notifies subscribers with the added
// element nodes. This is how the external page feed reports chat lines.
func (p *Page) AppendHTML(parentSelector, fragment string) ([]*Element, error) {
	sel, err := cascadia.Compile(parentSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid selector %q: %w", utils.ErrParsing, parentSelector, err)
	}

	// Parse the fragment in a generic div context
	ctxNode := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML fragment: %w", utils.ErrParsing, err)
	}

	p.mu.Lock()
	parentSel := p.doc.FindMatcher(sel)
	if parentSel.Length() == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: no parent matched %q", utils.ErrSelectorMiss, parentSelector)
	}
	parent := parentSel.Get(0)

	var added []*Element
	for _, n := range nodes {
		parent.AppendChild(n)
		collectElements(n, p, p.gen, &added)
	}
	p.mu.Unlock()

	if len(added) > 0 {
		p.notify(Mutation{Added: added})
	}
	return added, nil
}

// SetHTML replaces the whole document (page navigation or SPA route change).
// Handles held against the old document become inert.
func (p *Page) SetHTML(htmlSrc string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return fmt.Errorf("%w: parsing page HTML: %w", utils.ErrParsing, err)
	}

	p.mu.Lock()
	p.doc = doc
	p.gen++
	p.values = make(map[*html.Node]string)
	p.mu.Unlock()

	p.notify(Mutation{DocumentReplaced: true})
	return nil
}

// Subscribe registers a mutation listener with the given channel buffer.
// Slow subscribers drop batches rather than blocking the page; drops are
// counted and logged. The returned cancel func must be called exactly once.
func (p *Page) Subscribe(buf int) (<-chan Mutation, func()) {
	if buf <= 0 {
		buf = 16
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	sub := &subscriber{ch: make(chan Mutation, buf)}
	p.subs[id] = sub
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if s, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(s.ch)
		}
		p.mu.Unlock()
	}
	return sub.ch, cancel
}

func (p *Page) notify(m Mutation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subs {
		select {
		case sub.ch <- m:
		default:
			sub.dropped++
			if sub.dropped%100 == 1 {
				p.log.WithFields(logrus.Fields{"subscriber": id, "dropped": sub.dropped}).
					Warn("Mutation subscriber is slow, dropping batches")
			}
		}
	}
}

// Events returns a copy of the synthetic event journal.
func (p *Page) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// TakeEvents returns the journal and clears it.
func (p *Page) TakeEvents() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func (p *Page) recordEvent(ev Event) {
	p.events = append(p.events, ev)
}

func (p *Page) wrapAll(sel *goquery.Selection) []*Element {
	els := make([]*Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		els = append(els, &Element{page: p, node: n, gen: p.gen})
	}
	return els
}

func collectElements(n *html.Node, p *Page, gen uint64, out *[]*Element) {
	if n.Type == html.ElementNode {
		*out = append(*out, &Element{page: p, node: n, gen: gen})
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectElements(c, p, gen, out)
	}
}
