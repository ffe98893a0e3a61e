package observe

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"chatpilot/pkg/dom"
	"chatpilot/pkg/selectors"
)

// MaxUsernameLen bounds the username portion accepted by the heuristic
// fallback split. A "colon" deep inside a long message must not turn the
// message prefix into a username.
const MaxUsernameLen = 64

// Message is one extracted chat line.
type Message struct {
	Username string
	Text     string
	Seen     time.Time
}

// Extractor pulls (username, text) pairs out of chat line nodes. Selector
// lookup first, then a "username: text" split of the node's full text. Not
// every added node is a chat line; nodes yielding nothing are dropped
// silently.
type Extractor struct {
	usernameSels []string
	textSels     []string
	log          *logrus.Entry
}

// NewExtractor creates an Extractor using the username/messageText
// candidates of the given set.
func NewExtractor(set selectors.Set, log *logrus.Entry) *Extractor {
	return &Extractor{
		usernameSels: set[selectors.RoleUsername],
		textSels:     set[selectors.RoleMessageText],
		log:          log,
	}
}

// Extract attempts to pull a chat message out of node. Returns false for
// nodes that are not chat lines (timestamps, separators, gift banners).
func (e *Extractor) Extract(node *dom.Element) (Message, bool) {
	username := e.firstText(node, e.usernameSels)
	text := e.firstText(node, e.textSels)

	if username == "" && text == "" {
		return e.heuristicSplit(node)
	}
	if username == "" || text == "" {
		// Partial extraction: one selector family matched structural
		// chrome rather than a chat line. Try the heuristic before
		// giving up.
		if m, ok := e.heuristicSplit(node); ok {
			return m, true
		}
		return Message{}, false
	}
	return Message{Username: username, Text: text}, true
}

func (e *Extractor) firstText(node *dom.Element, candidates []string) string {
	for _, sel := range candidates {
		el, err := node.QueryFirst(sel)
		if err != nil {
			e.log.WithField("selector", sel).Debugf("Skipping unparseable selector: %v", err)
			continue
		}
		if el == nil {
			continue
		}
		if text := el.Text(); text != "" {
			return text
		}
	}
	return ""
}

// heuristicSplit falls back to splitting the node's full text on the first
// ": " occurrence, accepted only if the username portion stays short.
func (e *Extractor) heuristicSplit(node *dom.Element) (Message, bool) {
	full := node.Text()
	if full == "" {
		return Message{}, false
	}
	idx := strings.Index(full, ": ")
	if idx <= 0 || idx > MaxUsernameLen {
		return Message{}, false
	}
	username := strings.TrimSpace(full[:idx])
	text := strings.TrimSpace(full[idx+2:])
	if username == "" || text == "" {
		return Message{}, false
	}
	return Message{Username: username, Text: text}, true
}
